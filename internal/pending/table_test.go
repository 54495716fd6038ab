package pending

import (
	"testing"
	"time"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/protocol"
	"github.com/BranchIntl/gobroker/work"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func entry(t *testing.T, id string, worker string, offset time.Duration) Entry {
	t.Helper()
	req, err := work.NewRequestWithID(work.ID(id), nil, work.NewChanRequester())
	require.NoError(t, err)
	return Entry{
		Request:      req,
		Worker:       protocol.NewAddress(worker),
		DispatchedAt: epoch.Add(offset),
	}
}

func TestTable_InsertRemove(t *testing.T) {
	table := NewTable()

	require.NoError(t, table.Insert(entry(t, "42", "w1", 0)))
	assert.Equal(t, 1, table.Len())

	err := table.Insert(entry(t, "42", "w2", time.Second))
	assert.ErrorIs(t, err, errors.ErrDuplicateID)

	got, ok := table.Get("42")
	require.True(t, ok)
	assert.Equal(t, protocol.NewAddress("w1"), got.Worker)

	removed, err := table.Remove("42")
	require.NoError(t, err)
	assert.Equal(t, work.ID("42"), removed.Request.ID())
	assert.Equal(t, 0, table.Len())

	_, err = table.Remove("42")
	assert.ErrorIs(t, err, errors.ErrPendingNotFound)

	_, err = table.Remove("999")
	assert.ErrorIs(t, err, errors.ErrPendingNotFound)
}

func TestTable_ForWorker(t *testing.T) {
	table := NewTable()
	require.NoError(t, table.Insert(entry(t, "b", "w1", 2*time.Second)))
	require.NoError(t, table.Insert(entry(t, "a", "w1", time.Second)))
	require.NoError(t, table.Insert(entry(t, "c", "w2", 0)))

	assert.Equal(t, []work.ID{"a", "b"}, table.ForWorker(protocol.NewAddress("w1")))
	assert.Equal(t, []work.ID{"c"}, table.ForWorker(protocol.NewAddress("w2")))
	assert.Empty(t, table.ForWorker(protocol.NewAddress("w3")))
}

func TestTable_OldestAndDrain(t *testing.T) {
	table := NewTable()

	_, ok := table.Oldest()
	assert.False(t, ok)

	require.NoError(t, table.Insert(entry(t, "late", "w1", time.Minute)))
	require.NoError(t, table.Insert(entry(t, "early", "w2", time.Second)))

	oldest, ok := table.Oldest()
	require.True(t, ok)
	assert.Equal(t, epoch.Add(time.Second), oldest)

	drained := table.Drain()
	require.Len(t, drained, 2)
	assert.Equal(t, work.ID("early"), drained[0].Request.ID())
	assert.Equal(t, work.ID("late"), drained[1].Request.ID())
	assert.Equal(t, 0, table.Len())
}
