// Package worker is a reference worker that speaks the broker protocol.
//
// A Worker announces itself with READY, processes one dispatch at a time,
// answers with OUTPUT and announces READY again. When its context is
// cancelled it says GOODBYE and closes the connection.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/protocol"
	"github.com/BranchIntl/gobroker/work"
)

// Conn is the worker side of a transport
type Conn interface {
	Send(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) ([]byte, error)
	Close() error
}

// Task is one dispatch as seen by a processor
type Task struct {
	ID      work.ID
	Payload work.Payload
}

// Processor turns a task into result bytes
type Processor interface {
	Process(ctx context.Context, task Task) ([]byte, error)
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(ctx context.Context, task Task) ([]byte, error)

// Process implements Processor
func (f ProcessorFunc) Process(ctx context.Context, task Task) ([]byte, error) {
	return f(ctx, task)
}

// Stats are the worker's running counters
type Stats struct {
	Processed int64
	Failed    int64
	Rejected  int64
	StartTime time.Time
}

// Option configures a Worker
type Option func(*Worker)

// WithHostname sets the hostname reported to the broker
func WithHostname(hostname string) Option {
	return func(w *Worker) {
		if hostname != "" {
			w.hostname = hostname
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithGoodbyeTimeout bounds the GOODBYE send on shutdown
func WithGoodbyeTimeout(timeout time.Duration) Option {
	return func(w *Worker) {
		if timeout > 0 {
			w.goodbyeTimeout = timeout
		}
	}
}

// Worker represents one remote worker process
type Worker struct {
	conn           Conn
	processor      Processor
	hostname       string
	logger         *slog.Logger
	goodbyeTimeout time.Duration

	processed int64
	failed    int64
	rejected  int64
	startTime time.Time
}

// New creates a worker. The hostname defaults to os.Hostname.
func New(conn Conn, processor Processor, opts ...Option) *Worker {
	hostname, _ := os.Hostname()

	w := &Worker{
		conn:           conn,
		processor:      processor,
		hostname:       hostname,
		logger:         slog.Default(),
		goodbyeTimeout: 5 * time.Second,
		startTime:      time.Now(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "worker", "hostname", w.hostname)
	return w
}

// Hostname returns the hostname reported to the broker
func (w *Worker) Hostname() string {
	return w.hostname
}

// Run serves dispatches until ctx is cancelled or the connection fails.
// Cancellation is a clean stop and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	defer w.conn.Close()

	if err := w.send(ctx, protocol.Ready{Hostname: w.hostname}); err != nil {
		return w.stopped(ctx, err)
	}
	w.logger.Info("Worker ready")

	for {
		payload, err := w.conn.Receive(ctx)
		if err != nil {
			return w.stopped(ctx, err)
		}

		w.handle(ctx, payload)

		if ctx.Err() != nil {
			return w.stopped(ctx, ctx.Err())
		}
		if err := w.send(ctx, protocol.Ready{Hostname: w.hostname}); err != nil {
			return w.stopped(ctx, err)
		}
	}
}

// stopped says GOODBYE when the stop was requested and passes other
// errors through
func (w *Worker) stopped(ctx context.Context, err error) error {
	if ctx.Err() == nil {
		w.logger.Error("Worker connection failed", "error", err)
		return err
	}

	sendCtx, cancel := context.WithTimeout(context.Background(), w.goodbyeTimeout)
	defer cancel()
	if err := w.send(sendCtx, protocol.Goodbye{}); err != nil {
		w.logger.Warn("Failed to say goodbye", "error", err)
	}
	w.logger.Info("Worker stopping")
	return nil
}

func (w *Worker) handle(ctx context.Context, payload []byte) {
	id, params, err := protocol.DecodeDispatch(payload)
	if err != nil {
		atomic.AddInt64(&w.rejected, 1)
		w.logger.Warn("Discarding malformed dispatch", "error", err)
		return
	}

	start := time.Now()
	data, err := w.execute(ctx, Task{ID: id, Payload: params})
	if err != nil {
		atomic.AddInt64(&w.failed, 1)
		w.logger.Error("Request failed", "id", id, "error", err)
		return
	}

	if err := w.send(ctx, protocol.Output{ID: id, Data: data, Hostname: w.hostname}); err != nil {
		atomic.AddInt64(&w.failed, 1)
		w.logger.Error("Failed to return output", "id", id, "error", err)
		return
	}

	atomic.AddInt64(&w.processed, 1)
	w.logger.Debug("Request completed", "id", id, "bytes", len(data), "duration", time.Since(start))
}

// execute runs the processor with panic recovery
func (w *Worker) execute(ctx context.Context, task Task) (data []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.NewWorkerError(task.ID.String(), w.hostname, fmt.Errorf("panic: %v", r))
		}
	}()

	data, err = w.processor.Process(ctx, task)
	if err != nil {
		return nil, errors.NewWorkerError(task.ID.String(), w.hostname, err)
	}
	return data, nil
}

func (w *Worker) send(ctx context.Context, msg protocol.Message) error {
	payload, err := protocol.Encode(msg)
	if err != nil {
		return err
	}
	return w.conn.Send(ctx, payload)
}

// Stats returns the current counters
func (w *Worker) Stats() Stats {
	return Stats{
		Processed: atomic.LoadInt64(&w.processed),
		Failed:    atomic.LoadInt64(&w.failed),
		Rejected:  atomic.LoadInt64(&w.rejected),
		StartTime: w.startTime,
	}
}
