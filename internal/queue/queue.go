// Package queue holds requests that are waiting for a ready worker.
//
// Producers call Enqueue from any goroutine. Everything else is meant for the
// single broker loop that consumes the queue.
package queue

import (
	"context"
	"sync"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/work"
)

// Options for the work queue
type Options struct {
	// Capacity bounds the number of queued requests. Zero means unbounded.
	Capacity int
}

// Queue is a mutex guarded FIFO of work requests
type Queue struct {
	mu       sync.Mutex
	items    []*work.WorkRequest
	capacity int
	closed   bool
	notify   chan struct{}
}

// New creates an empty queue
func New(options Options) *Queue {
	return &Queue{
		capacity: options.Capacity,
		notify:   make(chan struct{}, 1),
	}
}

// Enqueue appends a request to the tail
func (q *Queue) Enqueue(ctx context.Context, req *work.WorkRequest) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.ErrShutdown
	}
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.mu.Unlock()
		return errors.ErrQueueFull
	}
	q.items = append(q.items, req)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Notify returns a channel that receives after the queue gains a request.
// Signals coalesce: one receive may stand for several enqueues.
func (q *Queue) Notify() <-chan struct{} {
	return q.notify
}

// Pop removes and returns the oldest request
func (q *Queue) Pop() (*work.WorkRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil, false
	}
	req := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return req, true
}

// PushFront returns a request to the head of the queue. It ignores the
// capacity because the request was already admitted.
func (q *Queue) PushFront(req *work.WorkRequest) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return errors.ErrShutdown
	}
	q.items = append([]*work.WorkRequest{req}, q.items...)
	q.mu.Unlock()

	q.signal()
	return nil
}

// Len returns the number of queued requests
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return len(q.items)
}

// IDs returns the queued request ids, oldest first
func (q *Queue) IDs() []work.ID {
	q.mu.Lock()
	defer q.mu.Unlock()

	ids := make([]work.ID, len(q.items))
	for i, req := range q.items {
		ids[i] = req.ID()
	}
	return ids
}

// Close rejects further enqueues and returns whatever was still queued
func (q *Queue) Close() []*work.WorkRequest {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.closed = true
	items := q.items
	q.items = nil
	return items
}

func (q *Queue) signal() {
	select {
	case q.notify <- struct{}{}:
	default:
	}
}
