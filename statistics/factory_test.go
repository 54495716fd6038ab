package statistics

import (
	"testing"

	"github.com/BranchIntl/gobroker/config"
	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/statistics/noop"
	"github.com/BranchIntl/gobroker/statistics/prometheus"
	"github.com/BranchIntl/gobroker/statistics/redis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		backends []string
		expected string
	}{
		{"none", nil, "noop"},
		{"noop", []string{"noop"}, "noop"},
		{"prometheus", []string{"prometheus"}, "prometheus"},
		{"redis", []string{"redis"}, "redis"},
		{"combined", []string{"prometheus", "redis"}, "prometheus+redis"},
		{"duplicates collapse", []string{"prometheus", "prometheus"}, "prometheus"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats, err := New(config.StatisticsConfig{Backends: tt.backends})
			require.NoError(t, err)
			assert.Equal(t, tt.expected, stats.Type())
		})
	}
}

func TestNew_RedisOptions(t *testing.T) {
	stats, err := New(config.StatisticsConfig{
		Backends:  []string{"redis"},
		RedisURI:  "redis://cache:6379/3",
		Namespace: "test:",
	})
	require.NoError(t, err)

	backend, ok := stats.(*redis.RedisStatistics)
	require.True(t, ok)
	assert.Equal(t, "redis", backend.Type())
}

func TestNew_UnknownType(t *testing.T) {
	_, err := New(config.StatisticsConfig{Backends: []string{"statsd"}})
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestMetricsHandler(t *testing.T) {
	promStats := prometheus.NewStatistics(prometheus.DefaultOptions())

	_, ok := MetricsHandler(noop.NewStatistics())
	assert.False(t, ok)

	h, ok := MetricsHandler(promStats)
	assert.True(t, ok)
	assert.NotNil(t, h)

	h, ok = MetricsHandler(NewMulti(noop.NewStatistics(), promStats))
	assert.True(t, ok)
	assert.NotNil(t, h)

	_, ok = MetricsHandler(NewMulti(noop.NewStatistics()))
	assert.False(t, ok)
}

func TestPrometheusBackend(t *testing.T) {
	promStats := prometheus.NewStatistics(prometheus.DefaultOptions())

	found, ok := PrometheusBackend(NewMulti(noop.NewStatistics(), promStats))
	require.True(t, ok)
	assert.Same(t, promStats, found)

	_, ok = PrometheusBackend(noop.NewStatistics())
	assert.False(t, ok)
}
