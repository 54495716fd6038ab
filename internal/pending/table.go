// Package pending tracks requests that were dispatched to a worker and are
// awaiting its OUTPUT.
package pending

import (
	"sort"
	"sync"
	"time"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/protocol"
	"github.com/BranchIntl/gobroker/work"
)

// Entry is one in-flight request
type Entry struct {
	Request      *work.WorkRequest
	Worker       protocol.Address
	DispatchedAt time.Time
}

// Table maps correlation ids to in-flight requests
type Table struct {
	mu      sync.RWMutex
	entries map[work.ID]Entry
}

// NewTable creates an empty table
func NewTable() *Table {
	return &Table{entries: make(map[work.ID]Entry)}
}

// Insert records a dispatched request. Ids are unique while in flight.
func (t *Table) Insert(entry Entry) error {
	id := entry.Request.ID()

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.entries[id]; ok {
		return errors.ErrDuplicateID
	}
	t.entries[id] = entry
	return nil
}

// Remove takes the entry for id out of the table
func (t *Table) Remove(id work.ID) (Entry, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	entry, ok := t.entries[id]
	if !ok {
		return Entry{}, errors.ErrPendingNotFound
	}
	delete(t.entries, id)
	return entry, nil
}

// Get returns the entry for id without removing it
func (t *Table) Get(id work.ID) (Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	entry, ok := t.entries[id]
	return entry, ok
}

// ForWorker returns the ids dispatched to addr, oldest first
func (t *Table) ForWorker(addr protocol.Address) []work.ID {
	t.mu.RLock()
	matches := make([]Entry, 0)
	for _, entry := range t.entries {
		if entry.Worker == addr {
			matches = append(matches, entry)
		}
	}
	t.mu.RUnlock()

	sortByAge(matches)
	ids := make([]work.ID, len(matches))
	for i, entry := range matches {
		ids[i] = entry.Request.ID()
	}
	return ids
}

// Len returns the number of in-flight requests
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.entries)
}

// Oldest returns the earliest dispatch time, or false when empty
func (t *Table) Oldest() (time.Time, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var oldest time.Time
	found := false
	for _, entry := range t.entries {
		if !found || entry.DispatchedAt.Before(oldest) {
			oldest = entry.DispatchedAt
			found = true
		}
	}
	return oldest, found
}

// Drain empties the table and returns its entries, oldest first
func (t *Table) Drain() []Entry {
	t.mu.Lock()
	entries := make([]Entry, 0, len(t.entries))
	for _, entry := range t.entries {
		entries = append(entries, entry)
	}
	t.entries = make(map[work.ID]Entry)
	t.mu.Unlock()

	sortByAge(entries)
	return entries
}

func sortByAge(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].DispatchedAt.Equal(entries[j].DispatchedAt) {
			return entries[i].Request.ID() < entries[j].Request.ID()
		}
		return entries[i].DispatchedAt.Before(entries[j].DispatchedAt)
	})
}
