package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BranchIntl/gobroker/core"
	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/protocol"
	"github.com/gomodule/redigo/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.Statistics = (*RedisStatistics)(nil)

func unreachableOpts(uri string) Options {
	opts := DefaultOptions()
	opts.URI = uri
	opts.ConnectTimeout = 100 * time.Millisecond
	return opts
}

func TestDefaultOptions(t *testing.T) {
	opts := DefaultOptions()

	assert.Equal(t, "gobroker:", opts.Namespace)
	assert.Equal(t, "redis://localhost:6379/", opts.URI)
	assert.Equal(t, 24*time.Hour, opts.PendingTTL)
}

func TestRedisStatistics_Connect(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"unreachable redis", unreachableOpts("redis://unreachable-host:6379")},
		{"unreachable rediss", unreachableOpts("rediss://unreachable-host:6380")},
		{"invalid URI", unreachableOpts(":/invalid-uri")},
		{"unsupported scheme", unreachableOpts("http://localhost:6379")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats := NewStatistics(tt.opts)

			err := stats.Connect(context.Background())
			require.Error(t, err)
			var connErr *errors.ConnectionError
			assert.ErrorAs(t, err, &connErr)

			assert.ErrorIs(t, stats.Health(), errors.ErrNotConnected)
		})
	}
}

func TestRedisStatistics_NotConnected(t *testing.T) {
	stats := NewStatistics(DefaultOptions())
	ctx := context.Background()
	addr := protocol.NewAddress("peer-1")

	assert.Equal(t, "redis", stats.Type())
	assert.ErrorIs(t, stats.Health(), errors.ErrNotConnected)
	assert.ErrorIs(t, stats.RecordWorkerReady(ctx, addr, "gpu-01"), errors.ErrNotConnected)
	assert.ErrorIs(t, stats.RecordWorkerGone(ctx, addr), errors.ErrNotConnected)
	assert.ErrorIs(t, stats.RecordDispatched(ctx, "42", addr), errors.ErrNotConnected)
	assert.ErrorIs(t, stats.RecordCompleted(ctx, "42", "gpu-01", time.Second), errors.ErrNotConnected)
	assert.ErrorIs(t, stats.RecordOrphaned(ctx, "999"), errors.ErrNotConnected)
	assert.ErrorIs(t, stats.RecordRejected(ctx, core.RejectProtocol), errors.ErrNotConnected)
	assert.ErrorIs(t, stats.RecordSnapshot(ctx, core.Snapshot{}), errors.ErrNotConnected)

	_, err := stats.GetTotals(ctx)
	assert.ErrorIs(t, err, errors.ErrNotConnected)

	// Close without a pool is fine, twice
	assert.NoError(t, stats.Close())
	assert.NoError(t, stats.Close())
}

func TestRedisStatistics_Keys(t *testing.T) {
	opts := DefaultOptions()
	opts.Namespace = "test:"
	stats := NewStatistics(opts)

	assert.Equal(t, "test:workers", stats.key("workers"))
	assert.Equal(t, "test:pending:42", stats.key("pending:42"))
}

// recordingConn is a redis.Conn that keeps every command it is given
type recordingConn struct {
	mu       sync.Mutex
	commands []string
}

func (c *recordingConn) record(cmd string, args ...interface{}) {
	if cmd == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commands = append(c.commands, strings.TrimSpace(fmt.Sprintln(append([]interface{}{cmd}, args...)...)))
}

func (c *recordingConn) Close() error { return nil }
func (c *recordingConn) Err() error   { return nil }
func (c *recordingConn) Flush() error { return nil }

func (c *recordingConn) Do(cmd string, args ...interface{}) (interface{}, error) {
	c.record(cmd, args...)
	return []interface{}{}, nil
}

func (c *recordingConn) Send(cmd string, args ...interface{}) error {
	c.record(cmd, args...)
	return nil
}

func (c *recordingConn) Receive() (interface{}, error) { return nil, nil }

func (c *recordingConn) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.commands...)
}

func newRecordingStatistics() (*RedisStatistics, *recordingConn) {
	conn := &recordingConn{}
	stats := NewStatistics(DefaultOptions())
	stats.pool = &redis.Pool{Dial: func() (redis.Conn, error) { return conn, nil }}
	return stats, conn
}

func TestRedisStatistics_WorkersSetTracksReadiness(t *testing.T) {
	stats, conn := newRecordingStatistics()
	ctx := context.Background()
	addr := protocol.NewAddress("peer-1")

	require.NoError(t, stats.RecordWorkerReady(ctx, addr, "gpu-01"))
	require.NoError(t, stats.RecordDispatched(ctx, "42", addr))

	commands := conn.Commands()
	assert.Contains(t, commands, "SADD gobroker:workers peer-1")
	assert.Contains(t, commands, "SREM gobroker:workers peer-1")
	assert.Contains(t, commands, "INCR gobroker:stat:dispatched")
	// the hostname record stays until the worker says GOODBYE
	for _, cmd := range commands {
		assert.NotEqual(t, "DEL gobroker:worker:peer-1", cmd)
	}

	require.NoError(t, stats.RecordWorkerGone(ctx, addr))
	assert.Contains(t, conn.Commands(), "DEL gobroker:worker:peer-1")
}
