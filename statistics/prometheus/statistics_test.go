package prometheus

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BranchIntl/gobroker/core"
	"github.com/BranchIntl/gobroker/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ core.Statistics = (*PrometheusStatistics)(nil)

func newTestStatistics() *PrometheusStatistics {
	opts := DefaultOptions()
	opts.RuntimeMetrics = false
	return NewStatistics(opts)
}

// value returns the summed counter or gauge value of a metric family
func value(t *testing.T, stats *PrometheusStatistics, name string) float64 {
	t.Helper()
	families, err := stats.Registry().Gather()
	require.NoError(t, err)

	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		var total float64
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				total += m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				total += m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				total += float64(m.GetHistogram().GetSampleCount())
			}
		}
		return total
	}
	t.Fatalf("metric %s not found", name)
	return 0
}

func TestPrometheusStatistics_Lifecycle(t *testing.T) {
	stats := newTestStatistics()

	assert.NoError(t, stats.Connect(context.Background()))
	assert.NoError(t, stats.Health())
	assert.Equal(t, "prometheus", stats.Type())
	assert.NoError(t, stats.Close())
}

func TestPrometheusStatistics_Counters(t *testing.T) {
	stats := newTestStatistics()
	ctx := context.Background()
	addr := protocol.NewAddress("peer-1")

	require.NoError(t, stats.RecordWorkerReady(ctx, addr, "gpu-01"))
	require.NoError(t, stats.RecordWorkerReady(ctx, addr, "gpu-01"))
	require.NoError(t, stats.RecordWorkerGone(ctx, addr))
	require.NoError(t, stats.RecordDispatched(ctx, "1", addr))
	require.NoError(t, stats.RecordCompleted(ctx, "1", "gpu-01", 3*time.Second))
	require.NoError(t, stats.RecordCompleted(ctx, "2", "gpu-02", time.Second))
	require.NoError(t, stats.RecordOrphaned(ctx, "999"))
	require.NoError(t, stats.RecordRejected(ctx, core.RejectProtocol))
	require.NoError(t, stats.RecordRejected(ctx, core.RejectQueueFull))

	assert.Equal(t, 2.0, value(t, stats, "gobroker_workers_registered_total"))
	assert.Equal(t, 1.0, value(t, stats, "gobroker_workers_departed_total"))
	assert.Equal(t, 1.0, value(t, stats, "gobroker_requests_dispatched_total"))
	assert.Equal(t, 2.0, value(t, stats, "gobroker_requests_completed_total"))
	assert.Equal(t, 1.0, value(t, stats, "gobroker_results_orphaned_total"))
	assert.Equal(t, 2.0, value(t, stats, "gobroker_rejected_total"))
	assert.Equal(t, 2.0, value(t, stats, "gobroker_completion_latency_seconds"))
}

func TestPrometheusStatistics_Snapshot(t *testing.T) {
	stats := newTestStatistics()

	require.NoError(t, stats.RecordSnapshot(context.Background(), core.Snapshot{
		Queued:        3,
		Ready:         1,
		Pending:       2,
		OldestPending: 1500 * time.Millisecond,
	}))

	assert.Equal(t, 3.0, value(t, stats, "gobroker_queue_depth"))
	assert.Equal(t, 1.0, value(t, stats, "gobroker_workers_ready"))
	assert.Equal(t, 2.0, value(t, stats, "gobroker_requests_pending"))
	assert.Equal(t, 1.5, value(t, stats, "gobroker_oldest_pending_seconds"))
}

func TestPrometheusStatistics_Handler(t *testing.T) {
	stats := NewStatistics(Options{Namespace: "test", RuntimeMetrics: true})
	require.NoError(t, stats.RecordDispatched(context.Background(), "1", protocol.NewAddress("p")))

	server := httptest.NewServer(stats.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "test_requests_dispatched_total 1")
	assert.Contains(t, string(body), "go_goroutines")
}
