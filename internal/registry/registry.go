// Package registry tracks workers that have announced READY and are waiting
// for a unit of work.
package registry

import (
	"sync"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/protocol"
)

// Member is a ready worker
type Member struct {
	Address  protocol.Address
	Hostname string
}

// Options for the worker registry
type Options struct {
	// Capacity bounds the number of ready workers. Zero means unbounded.
	Capacity int
}

// Registry is a thread-safe FIFO of ready workers. An address appears at
// most once.
type Registry struct {
	mu       sync.RWMutex
	order    []protocol.Address
	members  map[protocol.Address]string
	capacity int
}

// NewRegistry creates a new registry
func NewRegistry(options Options) *Registry {
	return &Registry{
		members:  make(map[protocol.Address]string),
		capacity: options.Capacity,
	}
}

// Register appends a ready worker to the tail. It reports false when the
// address was already registered, in which case its position is kept.
func (r *Registry) Register(addr protocol.Address, hostname string) (bool, error) {
	if addr.IsZero() {
		return false, errors.ErrWorkerNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[addr]; ok {
		r.members[addr] = hostname
		return false, nil
	}
	if r.capacity > 0 && len(r.order) >= r.capacity {
		return false, errors.ErrRegistryFull
	}

	r.order = append(r.order, addr)
	r.members[addr] = hostname
	return true, nil
}

// RegisterFront puts a worker back at the head, ahead of later arrivals
func (r *Registry) RegisterFront(addr protocol.Address, hostname string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[addr]; ok {
		return
	}
	r.order = append([]protocol.Address{addr}, r.order...)
	r.members[addr] = hostname
}

// TakeReady removes and returns the longest waiting worker
func (r *Registry) TakeReady() (Member, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.order) == 0 {
		return Member{}, false
	}
	addr := r.order[0]
	r.order = r.order[1:]
	hostname := r.members[addr]
	delete(r.members, addr)
	return Member{Address: addr, Hostname: hostname}, true
}

// Remove unregisters a worker
func (r *Registry) Remove(addr protocol.Address) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.members[addr]; !ok {
		return errors.ErrWorkerNotFound
	}
	delete(r.members, addr)
	for i, a := range r.order {
		if a == addr {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

// Contains reports whether the worker is waiting
func (r *Registry) Contains(addr protocol.Address) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.members[addr]
	return ok
}

// Len returns the number of ready workers
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// List returns the ready workers, longest waiting first
func (r *Registry) List() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]Member, 0, len(r.order))
	for _, addr := range r.order {
		members = append(members, Member{Address: addr, Hostname: r.members[addr]})
	}
	return members
}

// Clear removes all ready workers
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.order = nil
	r.members = make(map[protocol.Address]string)
}
