package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "websocket", cfg.Transport.Type)
	assert.Equal(t, ":5555", cfg.Transport.ListenAddr)
	assert.Equal(t, "/ws", cfg.Transport.Path)
	assert.Equal(t, 0, cfg.Broker.QueueCapacity)
	assert.Equal(t, 10*time.Second, cfg.Broker.ShutdownTimeout)
	assert.Equal(t, []string{"prometheus"}, cfg.Statistics.Backends)
	assert.Equal(t, 5*time.Minute, cfg.HTTP.RequestTimeout)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "@every 30s", cfg.Reporter.Schedule)
	assert.False(t, cfg.Tracing.Enabled)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broker.yaml")
	content := `
transport:
  type: nats
  nats_url: nats://queue:4222
  subject: render.broker
broker:
  queue_capacity: 100
  shutdown_timeout: 3s
statistics:
  backends: [noop]
logging:
  level: debug
  format: text
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "nats", cfg.Transport.Type)
	assert.Equal(t, "nats://queue:4222", cfg.Transport.NATSURL)
	assert.Equal(t, "render.broker", cfg.Transport.Subject)
	assert.Equal(t, 100, cfg.Broker.QueueCapacity)
	assert.Equal(t, 3*time.Second, cfg.Broker.ShutdownTimeout)
	assert.Equal(t, []string{"noop"}, cfg.Statistics.Backends)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// untouched keys keep their defaults
	assert.Equal(t, ":8080", cfg.HTTP.ListenAddr)
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("GOBROKER_TRANSPORT_LISTEN_ADDR", ":6000")
	t.Setenv("GOBROKER_BROKER_REGISTRY_CAPACITY", "4")
	t.Setenv("GOBROKER_LOGGING_LEVEL", "warn")

	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":6000", cfg.Transport.ListenAddr)
	assert.Equal(t, 4, cfg.Broker.RegistryCapacity)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, errors.ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		valid  bool
	}{
		{"defaults", func(c *Config) {}, true},
		{"unknown transport", func(c *Config) { c.Transport.Type = "zmq" }, false},
		{"negative queue capacity", func(c *Config) { c.Broker.QueueCapacity = -1 }, false},
		{"zero shutdown timeout", func(c *Config) { c.Broker.ShutdownTimeout = 0 }, false},
		{"unknown statistics backend", func(c *Config) { c.Statistics.Backends = []string{"statsd"} }, false},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, false},
		{"bad schedule", func(c *Config) { c.Reporter.Schedule = "every now and then" }, false},
		{"reporter without schedule", func(c *Config) { c.Reporter.Schedule = "" }, false},
		{"reporter disabled without schedule", func(c *Config) {
			c.Reporter.Enabled = false
			c.Reporter.Schedule = ""
		}, true},
		{"cron expression schedule", func(c *Config) { c.Reporter.Schedule = "*/5 * * * *" }, true},
		{"rabbitmq without uri", func(c *Config) {
			c.Transport.Type = "rabbitmq"
			c.Transport.RabbitMQURI = ""
		}, false},
		{"relative websocket path", func(c *Config) { c.Transport.Path = "ws" }, false},
		{"local workers on websocket", func(c *Config) { c.Worker.Local = 2 }, false},
		{"local workers on memory", func(c *Config) {
			c.Transport.Type = "memory"
			c.Worker.Local = 2
		}, true},
		{"tracing without service name", func(c *Config) {
			c.Tracing.Enabled = true
			c.Tracing.ServiceName = ""
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, errors.ErrInvalidConfig)
			}
		})
	}
}
