// Package reporter periodically logs the broker state and hands it to the
// statistics backend.
package reporter

import (
	"context"
	"log/slog"
	"sync"

	"github.com/BranchIntl/gobroker/core"
	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// DefaultSchedule reports every half minute
const DefaultSchedule = "@every 30s"

// Source provides the state to report
type Source interface {
	Snapshot() core.Snapshot
}

// Reporter runs the report on a cron schedule
type Reporter struct {
	source   Source
	stats    core.Statistics
	schedule string
	cron     *cron.Cron
	logger   *slog.Logger
	tracer   trace.Tracer

	mu      sync.Mutex
	started bool
}

// New creates a reporter. stats may be nil to only log.
func New(source Source, stats core.Statistics, schedule string, logger *slog.Logger) *Reporter {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reporter{
		source:   source,
		stats:    stats,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger.With("component", "reporter"),
		tracer:   otel.Tracer("github.com/BranchIntl/gobroker/reporter"),
	}
}

// Start schedules the report. It fails on a bad schedule.
func (r *Reporter) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	if _, err := r.cron.AddFunc(r.schedule, func() { r.Report(context.Background()) }); err != nil {
		r.logger.Error("Invalid report schedule", "schedule", r.schedule, "error", err)
		return err
	}
	r.cron.Start()
	r.started = true
	r.logger.Info("Reporter started", "schedule", r.schedule)
	return nil
}

// Stop stops the schedule and waits for a running report
func (r *Reporter) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		return
	}
	<-r.cron.Stop().Done()
	r.started = false
	r.logger.Info("Reporter stopped")
}

// Report takes one snapshot, logs it and records it
func (r *Reporter) Report(ctx context.Context) {
	snapshot := r.source.Snapshot()

	ctx, span := r.tracer.Start(ctx, "reporter.Report", trace.WithAttributes(
		attribute.Int("broker.queued", snapshot.Queued),
		attribute.Int("broker.ready", snapshot.Ready),
		attribute.Int("broker.pending", snapshot.Pending),
	))
	defer span.End()

	r.logger.Info("Broker state",
		"queued", snapshot.Queued,
		"ready", snapshot.Ready,
		"pending", snapshot.Pending,
		"oldest_pending", snapshot.OldestPending)

	if r.stats == nil {
		return
	}
	if err := r.stats.RecordSnapshot(ctx, snapshot); err != nil {
		span.RecordError(err)
		r.logger.Warn("Failed to record snapshot", "error", err)
	}
}
