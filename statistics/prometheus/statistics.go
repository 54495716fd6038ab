// Package prometheus exposes broker statistics as Prometheus metrics on a
// registry of its own.
package prometheus

import (
	"context"
	"net/http"
	"time"

	"github.com/BranchIntl/gobroker/core"
	"github.com/BranchIntl/gobroker/protocol"
	"github.com/BranchIntl/gobroker/work"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options for Prometheus statistics
type Options struct {
	// Namespace prefixes every metric name
	Namespace string
	// RuntimeMetrics adds the Go and process collectors
	RuntimeMetrics bool
	// LatencyBuckets for the completion latency histogram, in seconds
	LatencyBuckets []float64
}

// DefaultOptions returns default Prometheus statistics options
func DefaultOptions() Options {
	return Options{
		Namespace:      "gobroker",
		RuntimeMetrics: true,
		// image generation takes seconds to minutes
		LatencyBuckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
	}
}

// PrometheusStatistics implements the core.Statistics interface
type PrometheusStatistics struct {
	registry *prometheus.Registry

	workersReady prometheus.Counter
	workersGone  prometheus.Counter
	dispatched   prometheus.Counter
	completed    *prometheus.CounterVec
	orphaned     prometheus.Counter
	rejected     *prometheus.CounterVec
	latency      prometheus.Histogram

	queueDepth    prometheus.Gauge
	readyWorkers  prometheus.Gauge
	pending       prometheus.Gauge
	oldestPending prometheus.Gauge
}

// NewStatistics creates the metrics on a fresh registry
func NewStatistics(options Options) *PrometheusStatistics {
	if options.Namespace == "" {
		options.Namespace = DefaultOptions().Namespace
	}
	if len(options.LatencyBuckets) == 0 {
		options.LatencyBuckets = DefaultOptions().LatencyBuckets
	}

	registry := prometheus.NewRegistry()
	if options.RuntimeMetrics {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(registry)
	ns := options.Namespace

	return &PrometheusStatistics{
		registry: registry,

		workersReady: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "workers_registered_total",
			Help:      "Total number of workers added to the ready registry.",
		}),
		workersGone: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "workers_departed_total",
			Help:      "Total number of workers that said goodbye.",
		}),
		dispatched: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "requests_dispatched_total",
			Help:      "Total number of requests sent to a worker.",
		}),
		completed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "requests_completed_total",
			Help:      "Total number of results delivered to requesters.",
		}, []string{"hostname"}),
		orphaned: factory.NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "results_orphaned_total",
			Help:      "Total number of results for ids that were not pending.",
		}),
		rejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "rejected_total",
			Help:      "Total number of rejected messages and requests.",
		}, []string{"reason"}),
		latency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "completion_latency_seconds",
			Help:      "Time from dispatch to result.",
			Buckets:   options.LatencyBuckets,
		}),

		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "queue_depth",
			Help:      "Requests waiting for a worker.",
		}),
		readyWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "workers_ready",
			Help:      "Workers waiting for a request.",
		}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "requests_pending",
			Help:      "Requests dispatched and awaiting a result.",
		}),
		oldestPending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "oldest_pending_seconds",
			Help:      "Age of the oldest pending request.",
		}),
	}
}

// Registry returns the registry the metrics live on
func (p *PrometheusStatistics) Registry() *prometheus.Registry {
	return p.registry
}

// Handler serves the registry in the Prometheus exposition format
func (p *PrometheusStatistics) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{Registry: p.registry})
}

// Connect is a no-op: metrics are pulled
func (p *PrometheusStatistics) Connect(ctx context.Context) error {
	return nil
}

// Close is a no-op
func (p *PrometheusStatistics) Close() error {
	return nil
}

// Health always succeeds
func (p *PrometheusStatistics) Health() error {
	return nil
}

// Type returns the statistics backend type
func (p *PrometheusStatistics) Type() string {
	return "prometheus"
}

// RecordWorkerReady implements core.Statistics
func (p *PrometheusStatistics) RecordWorkerReady(ctx context.Context, addr protocol.Address, hostname string) error {
	p.workersReady.Inc()
	return nil
}

// RecordWorkerGone implements core.Statistics
func (p *PrometheusStatistics) RecordWorkerGone(ctx context.Context, addr protocol.Address) error {
	p.workersGone.Inc()
	return nil
}

// RecordDispatched implements core.Statistics
func (p *PrometheusStatistics) RecordDispatched(ctx context.Context, id work.ID, addr protocol.Address) error {
	p.dispatched.Inc()
	return nil
}

// RecordCompleted implements core.Statistics
func (p *PrometheusStatistics) RecordCompleted(ctx context.Context, id work.ID, hostname string, latency time.Duration) error {
	p.completed.WithLabelValues(hostname).Inc()
	p.latency.Observe(latency.Seconds())
	return nil
}

// RecordOrphaned implements core.Statistics
func (p *PrometheusStatistics) RecordOrphaned(ctx context.Context, id work.ID) error {
	p.orphaned.Inc()
	return nil
}

// RecordRejected implements core.Statistics
func (p *PrometheusStatistics) RecordRejected(ctx context.Context, reason string) error {
	p.rejected.WithLabelValues(reason).Inc()
	return nil
}

// RecordSnapshot updates the state gauges
func (p *PrometheusStatistics) RecordSnapshot(ctx context.Context, snapshot core.Snapshot) error {
	p.queueDepth.Set(float64(snapshot.Queued))
	p.readyWorkers.Set(float64(snapshot.Ready))
	p.pending.Set(float64(snapshot.Pending))
	p.oldestPending.Set(snapshot.OldestPending.Seconds())
	return nil
}
