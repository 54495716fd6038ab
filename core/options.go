package core

import (
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/BranchIntl/gobroker/core"

// Config holds broker configuration
type Config struct {
	QueueCapacity    int
	RegistryCapacity int
	ShutdownTimeout  time.Duration
	SendTimeout      time.Duration
	SendRetries      int
	SendRetryDelay   time.Duration
	Logger           *slog.Logger
	Clock            func() time.Time
	Tracer           trace.Tracer
}

// BrokerOption is a function that modifies broker configuration
type BrokerOption func(*Config)

// defaultConfig returns default configuration
func defaultConfig() *Config {
	return &Config{
		ShutdownTimeout: 10 * time.Second,
		SendTimeout:     5 * time.Second,
		SendRetries:     3,
		SendRetryDelay:  time.Second,
		Logger:          slog.Default(),
		Clock:           time.Now,
		Tracer:          otel.Tracer(tracerName),
	}
}

// WithQueueCapacity bounds the work queue. Zero means unbounded.
func WithQueueCapacity(n int) BrokerOption {
	return func(c *Config) {
		c.QueueCapacity = n
	}
}

// WithRegistryCapacity bounds the number of ready workers. Zero means unbounded.
func WithRegistryCapacity(n int) BrokerOption {
	return func(c *Config) {
		c.RegistryCapacity = n
	}
}

// WithShutdownTimeout sets the graceful shutdown timeout
func WithShutdownTimeout(d time.Duration) BrokerOption {
	return func(c *Config) {
		c.ShutdownTimeout = d
	}
}

// WithSendTimeout bounds a single dispatch on the transport
func WithSendTimeout(d time.Duration) BrokerOption {
	return func(c *Config) {
		c.SendTimeout = d
	}
}

// WithSendRetries sets how many consecutive failed dispatches a worker
// survives before it is dropped from the registry
func WithSendRetries(n int) BrokerOption {
	return func(c *Config) {
		if n > 0 {
			c.SendRetries = n
		}
	}
}

// WithSendRetryDelay sets how long the broker waits before dispatching again
// after a failed send
func WithSendRetryDelay(d time.Duration) BrokerOption {
	return func(c *Config) {
		if d > 0 {
			c.SendRetryDelay = d
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *slog.Logger) BrokerOption {
	return func(c *Config) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

// WithClock replaces the time source used for dispatch timestamps
func WithClock(now func() time.Time) BrokerOption {
	return func(c *Config) {
		if now != nil {
			c.Clock = now
		}
	}
}

// WithTracer sets the tracer used for dispatch and completion spans
func WithTracer(tracer trace.Tracer) BrokerOption {
	return func(c *Config) {
		if tracer != nil {
			c.Tracer = tracer
		}
	}
}
