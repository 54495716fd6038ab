// Package statistics builds statistics backends from configuration.
package statistics

import (
	"fmt"
	"net/http"

	"github.com/BranchIntl/gobroker/config"
	"github.com/BranchIntl/gobroker/core"
	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/statistics/noop"
	"github.com/BranchIntl/gobroker/statistics/prometheus"
	"github.com/BranchIntl/gobroker/statistics/redis"
)

// StatsType represents the type of statistics backend
type StatsType string

const (
	// NoOp statistics type
	NoOp StatsType = "noop"
	// Prometheus statistics type
	Prometheus StatsType = "prometheus"
	// Redis statistics type
	Redis StatsType = "redis"
)

// New creates the configured backends. Several backends are combined with
// Multi; none at all gives the no-op backend.
func New(cfg config.StatisticsConfig) (core.Statistics, error) {
	var backends []core.Statistics
	seen := make(map[StatsType]bool)

	for _, name := range cfg.Backends {
		typ := StatsType(name)
		if seen[typ] {
			continue
		}
		seen[typ] = true

		backend, err := newBackend(typ, cfg)
		if err != nil {
			return nil, err
		}
		backends = append(backends, backend)
	}

	switch len(backends) {
	case 0:
		return noop.NewStatistics(), nil
	case 1:
		return backends[0], nil
	default:
		return NewMulti(backends...), nil
	}
}

func newBackend(typ StatsType, cfg config.StatisticsConfig) (core.Statistics, error) {
	switch typ {
	case NoOp:
		return noop.NewStatistics(), nil

	case Prometheus:
		return prometheus.NewStatistics(prometheus.DefaultOptions()), nil

	case Redis:
		opts := redis.DefaultOptions()
		if cfg.RedisURI != "" {
			opts.URI = cfg.RedisURI
		}
		if cfg.Namespace != "" {
			opts.Namespace = cfg.Namespace
		}
		return redis.NewStatistics(opts), nil

	default:
		return nil, fmt.Errorf("%w: unknown statistics type: %s", errors.ErrInvalidConfig, typ)
	}
}

// PrometheusBackend finds the Prometheus backend, looking inside Multi
func PrometheusBackend(stats core.Statistics) (*prometheus.PrometheusStatistics, bool) {
	switch s := stats.(type) {
	case *prometheus.PrometheusStatistics:
		return s, true
	case *Multi:
		for _, backend := range s.Backends() {
			if p, ok := PrometheusBackend(backend); ok {
				return p, true
			}
		}
	}
	return nil, false
}

// MetricsHandler returns the /metrics handler when a backend serves one
func MetricsHandler(stats core.Statistics) (http.Handler, bool) {
	p, ok := PrometheusBackend(stats)
	if !ok {
		return nil, false
	}
	return p.Handler(), true
}
