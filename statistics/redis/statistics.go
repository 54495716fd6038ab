// Package redis records broker statistics in Redis so operators can inspect
// workers, counters and outstanding dispatches with any Redis client.
//
// Keys, relative to the namespace:
//
//	workers                 set of ready worker addresses, left on dispatch
//	worker:<addr>           hash: hostname, ready_at (kept until GOODBYE)
//	pending:<id>            hash: worker, dispatched_at (expires after PendingTTL)
//	stat:<name>             counters: dispatched, completed, orphaned, rejected
//	stat:completed:<host>   per hostname completions
//	stat:rejected:<reason>  per reason rejections
//	snapshot                hash of the last broker snapshot
//
// The pending keys are for visibility only. Nothing reads them back to
// recover requests.
package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BranchIntl/gobroker/core"
	"github.com/BranchIntl/gobroker/errors"
	redisUtils "github.com/BranchIntl/gobroker/internal/redis"
	"github.com/BranchIntl/gobroker/protocol"
	"github.com/BranchIntl/gobroker/work"
	"github.com/gomodule/redigo/redis"
)

// Totals are the global counters kept in Redis
type Totals struct {
	Dispatched    int64
	Completed     int64
	Orphaned      int64
	Rejected      int64
	ActiveWorkers int64
}

// RedisStatistics implements the core.Statistics interface for Redis
type RedisStatistics struct {
	mu        sync.RWMutex
	pool      *redis.Pool
	namespace string
	options   Options
}

// NewStatistics creates a new Redis statistics backend
func NewStatistics(options Options) *RedisStatistics {
	return &RedisStatistics{
		namespace: options.Namespace,
		options:   options,
	}
}

// Connect creates the pool and checks the server answers
func (r *RedisStatistics) Connect(ctx context.Context) error {
	pool := redisUtils.NewPool(r.options.Options)
	if err := redisUtils.Ping(pool, r.options.URI); err != nil {
		pool.Close()
		return err
	}

	r.mu.Lock()
	r.pool = pool
	r.mu.Unlock()
	return nil
}

// Close closes the Redis connection pool
func (r *RedisStatistics) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.pool == nil {
		return nil
	}
	err := r.pool.Close()
	r.pool = nil
	return err
}

// Health checks the Redis connection health
func (r *RedisStatistics) Health() error {
	pool, err := r.getPool()
	if err != nil {
		return err
	}
	return redisUtils.Ping(pool, r.options.URI)
}

// Type returns the statistics backend type
func (r *RedisStatistics) Type() string {
	return "redis"
}

// RecordWorkerReady adds the worker to the workers set
func (r *RedisStatistics) RecordWorkerReady(ctx context.Context, addr protocol.Address, hostname string) error {
	return r.transaction(func(conn redis.Conn) {
		conn.Send("SADD", r.key("workers"), addr.String())
		conn.Send("HSET", r.key("worker:"+addr.String()),
			"hostname", hostname,
			"ready_at", time.Now().Format(time.RFC3339))
	})
}

// RecordWorkerGone removes the worker
func (r *RedisStatistics) RecordWorkerGone(ctx context.Context, addr protocol.Address) error {
	return r.transaction(func(conn redis.Conn) {
		conn.Send("SREM", r.key("workers"), addr.String())
		conn.Send("DEL", r.key("worker:"+addr.String()))
	})
}

// RecordDispatched counts the dispatch, takes the worker out of the ready
// set and records the request as pending
func (r *RedisStatistics) RecordDispatched(ctx context.Context, id work.ID, addr protocol.Address) error {
	pendingKey := r.key("pending:" + id.String())
	return r.transaction(func(conn redis.Conn) {
		conn.Send("INCR", r.key("stat:dispatched"))
		conn.Send("SREM", r.key("workers"), addr.String())
		conn.Send("HSET", pendingKey,
			"worker", addr.String(),
			"dispatched_at", time.Now().Format(time.RFC3339Nano))
		if r.options.PendingTTL > 0 {
			conn.Send("EXPIRE", pendingKey, int64(r.options.PendingTTL/time.Second))
		}
	})
}

// RecordCompleted counts the completion and clears the pending record
func (r *RedisStatistics) RecordCompleted(ctx context.Context, id work.ID, hostname string, latency time.Duration) error {
	return r.transaction(func(conn redis.Conn) {
		conn.Send("INCR", r.key("stat:completed"))
		conn.Send("INCR", r.key("stat:completed:"+hostname))
		conn.Send("INCRBY", r.key("stat:latency_ms"), latency.Milliseconds())
		conn.Send("DEL", r.key("pending:"+id.String()))
	})
}

// RecordOrphaned counts a result for an unknown id
func (r *RedisStatistics) RecordOrphaned(ctx context.Context, id work.ID) error {
	return r.transaction(func(conn redis.Conn) {
		conn.Send("INCR", r.key("stat:orphaned"))
	})
}

// RecordRejected counts a rejection by reason
func (r *RedisStatistics) RecordRejected(ctx context.Context, reason string) error {
	return r.transaction(func(conn redis.Conn) {
		conn.Send("INCR", r.key("stat:rejected"))
		conn.Send("INCR", r.key("stat:rejected:"+reason))
	})
}

// RecordSnapshot stores the latest broker snapshot
func (r *RedisStatistics) RecordSnapshot(ctx context.Context, snapshot core.Snapshot) error {
	return r.transaction(func(conn redis.Conn) {
		conn.Send("HSET", r.key("snapshot"),
			"queued", snapshot.Queued,
			"ready", snapshot.Ready,
			"pending", snapshot.Pending,
			"oldest_pending_ms", snapshot.OldestPending.Milliseconds(),
			"taken", snapshot.Taken.Format(time.RFC3339))
	})
}

// GetTotals reads the global counters
func (r *RedisStatistics) GetTotals(ctx context.Context) (Totals, error) {
	pool, err := r.getPool()
	if err != nil {
		return Totals{}, err
	}
	conn := pool.Get()
	defer conn.Close()

	values, err := redis.Values(conn.Do("MGET",
		r.key("stat:dispatched"),
		r.key("stat:completed"),
		r.key("stat:orphaned"),
		r.key("stat:rejected"),
	))
	if err != nil {
		return Totals{}, fmt.Errorf("failed to get counters: %w", err)
	}
	counters := make([]int64, len(values))
	for i, v := range values {
		if v == nil {
			continue
		}
		n, err := redis.Int64(v, nil)
		if err != nil {
			return Totals{}, fmt.Errorf("failed to parse counter: %w", err)
		}
		counters[i] = n
	}

	workers, err := redis.Int64(conn.Do("SCARD", r.key("workers")))
	if err != nil {
		return Totals{}, fmt.Errorf("failed to get active workers: %w", err)
	}

	return Totals{
		Dispatched:    counters[0],
		Completed:     counters[1],
		Orphaned:      counters[2],
		Rejected:      counters[3],
		ActiveWorkers: workers,
	}, nil
}

// transaction queues commands inside MULTI and runs them with EXEC
func (r *RedisStatistics) transaction(queue func(conn redis.Conn)) error {
	pool, err := r.getPool()
	if err != nil {
		return err
	}
	conn := pool.Get()
	defer conn.Close()

	if err := conn.Send("MULTI"); err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	queue(conn)
	if _, err := conn.Do("EXEC"); err != nil {
		return fmt.Errorf("failed to record statistics: %w", err)
	}
	return nil
}

func (r *RedisStatistics) getPool() (*redis.Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.pool == nil {
		return nil, errors.ErrNotConnected
	}
	return r.pool, nil
}

func (r *RedisStatistics) key(name string) string {
	return r.namespace + name
}
