package core

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/internal/pending"
	"github.com/BranchIntl/gobroker/internal/queue"
	"github.com/BranchIntl/gobroker/internal/registry"
	"github.com/BranchIntl/gobroker/protocol"
	"github.com/BranchIntl/gobroker/work"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Broker pairs queued work requests with ready workers and correlates their
// results. All registry and pending table mutations happen on one loop
// goroutine; producers only touch the queue.
type Broker struct {
	transport Transport
	stats     Statistics
	config    *Config
	logger    *slog.Logger

	queue    *queue.Queue
	registry *registry.Registry
	pending  *pending.Table
	// consecutive failed sends per worker, loop goroutine only
	sendFailures map[protocol.Address]int

	mu      sync.Mutex
	started bool
	stopped bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewBroker creates a new broker with dependency injection
func NewBroker(transport Transport, stats Statistics, options ...BrokerOption) *Broker {
	config := defaultConfig()
	for _, opt := range options {
		opt(config)
	}

	return &Broker{
		transport: transport,
		stats:     stats,
		config:    config,
		logger:    config.Logger.With("component", "broker"),
		queue:     queue.New(queue.Options{Capacity: config.QueueCapacity}),
		registry:  registry.NewRegistry(registry.Options{Capacity: config.RegistryCapacity}),
		pending:   pending.NewTable(),

		sendFailures: make(map[protocol.Address]int),
	}
}

// Start connects the transport and statistics backend and launches the loop
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.stopped {
		return errors.ErrShutdown
	}
	if b.started {
		return nil
	}

	if err := b.transport.Connect(ctx); err != nil {
		return errors.NewConnectionError(b.transport.Type(),
			fmt.Errorf("failed to connect transport: %w", err))
	}

	if err := b.stats.Connect(ctx); err != nil {
		_ = b.transport.Close()
		return errors.NewConnectionError(b.stats.Type(),
			fmt.Errorf("failed to connect statistics: %w", err))
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.done = make(chan struct{})
	b.started = true

	go func() {
		defer close(b.done)
		b.loop(loopCtx)
	}()

	b.logger.Info("Broker started", "transport", b.transport.Type(), "statistics", b.stats.Type())
	return nil
}

// Stop gracefully shuts down the broker. Requests still queued or pending
// are failed with ErrShutdown.
func (b *Broker) Stop() error {
	b.mu.Lock()
	if b.stopped {
		b.mu.Unlock()
		return nil
	}
	b.stopped = true
	started := b.started
	cancel := b.cancel
	done := b.done
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if done != nil {
		select {
		case <-done:
			b.logger.Info("Broker stopped gracefully")
		case <-time.After(b.config.ShutdownTimeout):
			b.logger.Warn("Broker shutdown timeout exceeded")
		}
	}

	for _, req := range b.queue.Close() {
		req.Requester().Fail(errors.NewDeliveryError(req.ID().String(), errors.ErrShutdown))
	}
	for _, entry := range b.pending.Drain() {
		b.logger.Warn("Abandoning pending request", "id", entry.Request.ID(), "worker", entry.Worker)
		entry.Request.Requester().Fail(errors.NewDeliveryError(entry.Request.ID().String(), errors.ErrShutdown))
	}
	b.registry.Clear()

	if !started {
		return nil
	}

	// Close connections
	if err := b.transport.Close(); err != nil {
		b.logger.Error("Error closing transport", "error", err)
	}

	if err := b.stats.Close(); err != nil {
		b.logger.Error("Error closing statistics", "error", err)
	}

	return nil
}

// Run starts the broker and blocks until the context is cancelled or a
// shutdown signal is received
func (b *Broker) Run(ctx context.Context) error {
	if err := b.Start(ctx); err != nil {
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		b.logger.Info("Context cancelled, shutting down...")
	case sig := <-sigChan:
		b.logger.Info("Received signal, shutting down...", "signal", sig)
	}

	return b.Stop()
}

// Enqueue submits a request. It is safe to call from any goroutine, before
// or after Start.
func (b *Broker) Enqueue(ctx context.Context, req *work.WorkRequest) error {
	if req == nil {
		return errors.ErrInvalidPayload
	}

	err := b.queue.Enqueue(ctx, req)
	switch {
	case err == nil:
		b.logger.Debug("Request queued", "id", req.ID())
	case errors.Is(err, errors.ErrQueueFull):
		b.logger.Warn("Work queue full, rejecting request", "id", req.ID())
		b.observe("rejected", b.stats.RecordRejected(ctx, RejectQueueFull))
	}
	return err
}

// Snapshot returns the current queue, registry and pending sizes
func (b *Broker) Snapshot() Snapshot {
	now := b.config.Clock()
	snapshot := Snapshot{
		Queued:  b.queue.Len(),
		Ready:   b.registry.Len(),
		Pending: b.pending.Len(),
		Taken:   now,
	}
	if oldest, ok := b.pending.Oldest(); ok {
		snapshot.OldestPending = now.Sub(oldest)
	}
	return snapshot
}

// Health returns the current health status
func (b *Broker) Health() HealthStatus {
	transportHealth := b.transport.Health()
	statsHealth := b.stats.Health()

	return HealthStatus{
		Healthy:         transportHealth == nil && statsHealth == nil,
		TransportHealth: transportHealth,
		StatsHealth:     statsHealth,
		Snapshot:        b.Snapshot(),
		LastCheck:       b.config.Clock(),
	}
}

// loop waits for worker frames or new requests and runs a dispatch round
// after each wake-up. A round cut short by a failed send is retried after
// SendRetryDelay.
func (b *Broker) loop(ctx context.Context) {
	inbound := b.transport.Inbound()

	var retry <-chan time.Time
	if b.dispatch(ctx) {
		retry = time.After(b.config.SendRetryDelay)
	}
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-inbound:
			if !ok {
				b.logger.Warn("Transport inbound closed")
				inbound = nil
				continue
			}
			b.handleFrame(ctx, frame)
			inbound = b.drain(ctx, inbound)
		case <-b.queue.Notify():
		case <-retry:
			retry = nil
		}

		if b.dispatch(ctx) && retry == nil {
			retry = time.After(b.config.SendRetryDelay)
		}
	}
}

// drain handles every frame that is already buffered
func (b *Broker) drain(ctx context.Context, inbound <-chan protocol.Frame) <-chan protocol.Frame {
	for {
		select {
		case frame, ok := <-inbound:
			if !ok {
				b.logger.Warn("Transport inbound closed")
				return nil
			}
			b.handleFrame(ctx, frame)
		default:
			return inbound
		}
	}
}

func (b *Broker) handleFrame(ctx context.Context, frame protocol.Frame) {
	msg, err := protocol.Decode(frame.Payload)
	if err != nil {
		b.logger.Warn("Rejected worker message", "peer", frame.Peer, "error", err)
		b.observe("rejected", b.stats.RecordRejected(ctx, RejectProtocol))
		return
	}

	switch m := msg.(type) {
	case protocol.Ready:
		b.handleReady(ctx, frame.Peer, m)
	case protocol.Output:
		b.handleOutput(ctx, frame.Peer, m)
	case protocol.Goodbye:
		b.handleGoodbye(ctx, frame.Peer)
	}
}

func (b *Broker) handleReady(ctx context.Context, peer protocol.Address, msg protocol.Ready) {
	added, err := b.registry.Register(peer, msg.Hostname)
	if err != nil {
		b.logger.Warn("Cannot register worker", "peer", peer, "hostname", msg.Hostname, "error", err)
		if errors.Is(err, errors.ErrRegistryFull) {
			b.observe("rejected", b.stats.RecordRejected(ctx, RejectRegistryFull))
		}
		return
	}
	if !added {
		b.logger.Debug("Worker already ready", "peer", peer, "hostname", msg.Hostname)
		return
	}

	b.logger.Info("Worker ready", "peer", peer, "hostname", msg.Hostname)
	b.observe("worker_ready", b.stats.RecordWorkerReady(ctx, peer, msg.Hostname))
}

func (b *Broker) handleOutput(ctx context.Context, peer protocol.Address, msg protocol.Output) {
	entry, err := b.pending.Remove(msg.ID)
	if err != nil {
		b.logger.Info("Received result for unknown request", "id", msg.ID, "hostname", msg.Hostname)
		b.observe("orphaned", b.stats.RecordOrphaned(ctx, msg.ID))
		return
	}

	_, span := b.config.Tracer.Start(ctx, "broker.complete", trace.WithAttributes(
		attribute.String("request.id", msg.ID.String()),
		attribute.String("worker.address", peer.String()),
		attribute.String("worker.hostname", msg.Hostname),
	))
	defer span.End()

	if entry.Worker != peer {
		b.logger.Warn("Result arrived from a different worker",
			"id", msg.ID, "dispatched_to", entry.Worker, "received_from", peer)
	}

	latency := b.config.Clock().Sub(entry.DispatchedAt)
	entry.Request.Requester().Deliver(work.Result{Data: msg.Data, Hostname: msg.Hostname})

	b.logger.Info("Result delivered", "id", msg.ID, "hostname", msg.Hostname, "latency", latency)
	b.observe("completed", b.stats.RecordCompleted(ctx, msg.ID, msg.Hostname, latency))
}

func (b *Broker) handleGoodbye(ctx context.Context, peer protocol.Address) {
	delete(b.sendFailures, peer)
	if err := b.registry.Remove(peer); err != nil {
		b.logger.Debug("Goodbye from worker that was not ready", "peer", peer)
	}

	if orphaned := b.pending.ForWorker(peer); len(orphaned) > 0 {
		b.logger.Warn("Worker left with requests in flight", "peer", peer, "pending", orphaned)
	} else {
		b.logger.Info("Worker left", "peer", peer)
	}
	b.observe("worker_gone", b.stats.RecordWorkerGone(ctx, peer))
}

// dispatch pairs the oldest queued request with the longest waiting worker
// until one side runs out. It reports whether a send failed, which ends the
// round early.
func (b *Broker) dispatch(ctx context.Context) bool {
	for ctx.Err() == nil && b.queue.Len() > 0 && b.registry.Len() > 0 {
		member, ok := b.registry.TakeReady()
		if !ok {
			return false
		}
		req, ok := b.queue.Pop()
		if !ok {
			b.registry.RegisterFront(member.Address, member.Hostname)
			return false
		}
		if !b.dispatchOne(ctx, member, req) {
			return true
		}
	}
	return false
}

// dispatchOne sends req to member. It returns false when the transport send
// failed and the request went back to the head of the queue.
func (b *Broker) dispatchOne(ctx context.Context, member registry.Member, req *work.WorkRequest) bool {
	ctx, span := b.config.Tracer.Start(ctx, "broker.dispatch", trace.WithAttributes(
		attribute.String("request.id", req.ID().String()),
		attribute.String("worker.address", member.Address.String()),
	))
	defer span.End()

	data, err := protocol.EncodeDispatch(req.ID(), req.Payload())
	if err != nil {
		b.fail(span, req, member, err)
		return true
	}

	entry := pending.Entry{Request: req, Worker: member.Address, DispatchedAt: b.config.Clock()}
	if err := b.pending.Insert(entry); err != nil {
		b.fail(span, req, member, err)
		return true
	}

	sendCtx, cancel := context.WithTimeout(ctx, b.config.SendTimeout)
	defer cancel()

	if err := b.transport.Send(sendCtx, protocol.Frame{Peer: member.Address, Payload: data}); err != nil {
		_, _ = b.pending.Remove(req.ID())
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		b.logger.Error("Dispatch failed, requeueing request", "id", req.ID(),
			"error", errors.NewBrokerError("send", member.Address.String(), err))
		if qerr := b.queue.PushFront(req); qerr != nil {
			req.Requester().Fail(errors.NewDeliveryError(req.ID().String(), qerr))
		}
		b.sendFailed(ctx, member, err)
		return false
	}

	delete(b.sendFailures, member.Address)
	b.logger.Info("Request dispatched", "id", req.ID(), "peer", member.Address, "hostname", member.Hostname)
	b.observe("dispatched", b.stats.RecordDispatched(ctx, req.ID(), member.Address))
	return true
}

// sendFailed puts a worker whose dispatch failed back at the tail of the
// registry. A peer the transport no longer knows, or one that failed
// SendRetries times in a row, is dropped instead.
func (b *Broker) sendFailed(ctx context.Context, member registry.Member, err error) {
	failures := b.sendFailures[member.Address] + 1
	if errors.Is(err, errors.ErrWorkerNotFound) || failures >= b.config.SendRetries {
		delete(b.sendFailures, member.Address)
		b.logger.Warn("Dropping unreachable worker", "peer", member.Address,
			"hostname", member.Hostname, "failures", failures)
		b.observe("worker_gone", b.stats.RecordWorkerGone(ctx, member.Address))
		return
	}

	b.sendFailures[member.Address] = failures
	if _, rerr := b.registry.Register(member.Address, member.Hostname); rerr != nil {
		delete(b.sendFailures, member.Address)
		b.logger.Warn("Cannot re-register worker", "peer", member.Address, "error", rerr)
		b.observe("worker_gone", b.stats.RecordWorkerGone(ctx, member.Address))
	}
}

// fail rejects a request that can never be dispatched. The worker did not
// receive anything, so it keeps its place at the head of the registry.
func (b *Broker) fail(span trace.Span, req *work.WorkRequest, member registry.Member, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "request rejected")
	b.logger.Error("Cannot dispatch request", "id", req.ID(), "error", err)

	req.Requester().Fail(errors.NewDeliveryError(req.ID().String(), err))
	b.registry.RegisterFront(member.Address, member.Hostname)
}

func (b *Broker) observe(metric string, err error) {
	if err != nil {
		b.logger.Debug("Statistics update failed", "metric", metric, "error", err)
	}
}
