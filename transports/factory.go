// Package transports builds broker transports and worker connections from
// configuration.
package transports

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/BranchIntl/gobroker/config"
	"github.com/BranchIntl/gobroker/core"
	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/transports/memory"
	"github.com/BranchIntl/gobroker/transports/nats"
	"github.com/BranchIntl/gobroker/transports/rabbitmq"
	"github.com/BranchIntl/gobroker/transports/websocket"
	"github.com/BranchIntl/gobroker/worker"
)

// TransportType represents the type of transport
type TransportType string

const (
	// Memory is the in-process transport
	Memory TransportType = "memory"
	// WebSocket is the default network transport
	WebSocket TransportType = "websocket"
	// NATS transport type
	NATS TransportType = "nats"
	// RabbitMQ transport type
	RabbitMQ TransportType = "rabbitmq"
)

// New creates the broker side of the configured transport
func New(cfg config.TransportConfig, logger *slog.Logger) (core.Transport, error) {
	switch TransportType(cfg.Type) {
	case Memory:
		return memory.NewTransport(memory.Options{BufferSize: cfg.BufferSize}), nil

	case WebSocket:
		opts := websocket.DefaultOptions()
		opts.ListenAddr = cfg.ListenAddr
		if cfg.Path != "" {
			opts.Path = cfg.Path
		}
		opts.BufferSize = cfg.BufferSize
		opts.Logger = logger
		return websocket.NewTransport(opts), nil

	case NATS:
		opts := nats.DefaultOptions()
		opts.URL = cfg.NATSURL
		opts.Subject = cfg.Subject
		opts.BufferSize = cfg.BufferSize
		opts.Logger = logger
		return nats.NewTransport(opts), nil

	case RabbitMQ:
		opts := rabbitmq.DefaultOptions()
		opts.URI = cfg.RabbitMQURI
		opts.Queue = cfg.Queue
		opts.BufferSize = cfg.BufferSize
		opts.Logger = logger
		return rabbitmq.NewTransport(opts), nil

	default:
		return nil, fmt.Errorf("%w: unknown transport type: %s", errors.ErrInvalidConfig, cfg.Type)
	}
}

// Dial connects a worker to a broker using the configured transport. For
// websocket, url overrides the address derived from listen_addr and path.
func Dial(ctx context.Context, cfg config.TransportConfig, url string) (worker.Conn, error) {
	switch TransportType(cfg.Type) {
	case Memory:
		return nil, fmt.Errorf("%w: the memory transport only serves in-process workers", errors.ErrInvalidConfig)

	case WebSocket:
		if url == "" {
			url = WebSocketURL(cfg)
		}
		return websocket.Dial(ctx, url)

	case NATS:
		return nats.DialPeer(cfg.NATSURL, cfg.Subject)

	case RabbitMQ:
		opts := rabbitmq.DefaultOptions()
		opts.URI = cfg.RabbitMQURI
		opts.Queue = cfg.Queue
		return rabbitmq.DialPeer(opts)

	default:
		return nil, fmt.Errorf("%w: unknown transport type: %s", errors.ErrInvalidConfig, cfg.Type)
	}
}

// WebSocketURL derives the worker URL for a websocket listen address. An
// empty host means the local machine.
func WebSocketURL(cfg config.TransportConfig) string {
	host, port, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		host, port = cfg.ListenAddr, ""
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	path := cfg.Path
	if path == "" {
		path = websocket.DefaultOptions().Path
	}
	if port == "" {
		return "ws://" + host + path
	}
	return "ws://" + net.JoinHostPort(host, port) + path
}
