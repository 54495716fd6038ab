// Package nats carries broker frames over NATS subjects.
//
// Workers publish to the broker subject with a reply inbox set. That inbox is
// the worker's address: dispatches are published to it.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/protocol"
	"github.com/nats-io/nats.go"
)

// Options for the nats transport
type Options struct {
	URL        string
	Subject    string
	Name       string
	BufferSize int
	Logger     *slog.Logger
}

// DefaultOptions returns default nats transport options
func DefaultOptions() Options {
	return Options{
		URL:        nats.DefaultURL,
		Subject:    "gobroker.broker",
		Name:       "gobroker",
		BufferSize: 256,
	}
}

// Transport implements the core.Transport interface over NATS
type Transport struct {
	options Options
	logger  *slog.Logger

	mu     sync.RWMutex
	nc     *nats.Conn
	sub    *nats.Subscription
	closed bool

	inbound chan protocol.Frame
	done    chan struct{}
}

// NewTransport creates a new nats transport
func NewTransport(options Options) *Transport {
	defaults := DefaultOptions()
	if options.URL == "" {
		options.URL = defaults.URL
	}
	if options.Subject == "" {
		options.Subject = defaults.Subject
	}
	if options.BufferSize <= 0 {
		options.BufferSize = defaults.BufferSize
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		options: options,
		logger:  logger.With("component", "transport", "transport", "nats"),
		inbound: make(chan protocol.Frame, options.BufferSize),
		done:    make(chan struct{}),
	}
}

// Connect dials the server and subscribes to the broker subject
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.ErrShutdown
	}
	if t.nc != nil {
		return nil
	}

	nc, err := nats.Connect(t.options.URL, func(o *nats.Options) error {
		if t.options.Name != "" {
			o.Name = t.options.Name
		}
		return nil
	})
	if err != nil {
		return errors.NewConnectionError(t.options.URL,
			fmt.Errorf("failed to connect to NATS: %w", err))
	}

	sub, err := nc.Subscribe(t.options.Subject, t.handle)
	if err != nil {
		nc.Close()
		return errors.NewConnectionError(t.options.URL,
			fmt.Errorf("failed to subscribe to %s: %w", t.options.Subject, err))
	}

	t.nc = nc
	t.sub = sub
	t.logger.Info("Subscribed to broker subject", "subject", t.options.Subject, "url", nc.ConnectedUrl())
	return nil
}

func (t *Transport) handle(msg *nats.Msg) {
	if msg.Reply == "" {
		t.logger.Warn("Dropping message without reply subject", "subject", msg.Subject)
		return
	}

	select {
	case t.inbound <- protocol.Frame{Peer: protocol.NewAddress(msg.Reply), Payload: msg.Data}:
	case <-t.done:
	}
}

// Close unsubscribes and closes the connection
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	close(t.done)

	var err error
	if t.sub != nil {
		err = t.sub.Unsubscribe()
	}
	if t.nc != nil {
		t.nc.Close()
	}
	return err
}

// Health checks the NATS connection health
func (t *Transport) Health() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.closed || t.nc == nil || !t.nc.IsConnected() {
		return errors.ErrNotConnected
	}
	return nil
}

// Type returns the transport type
func (t *Transport) Type() string {
	return "nats"
}

// Inbound returns frames received from workers
func (t *Transport) Inbound() <-chan protocol.Frame {
	return t.inbound
}

// Send publishes a payload to the worker's reply subject
func (t *Transport) Send(ctx context.Context, frame protocol.Frame) error {
	t.mu.RLock()
	nc := t.nc
	closed := t.closed
	t.mu.RUnlock()

	if nc == nil || closed {
		return errors.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := nc.Publish(frame.Peer.Key(), frame.Payload); err != nil {
		return errors.NewBrokerError("send", frame.Peer.String(), err)
	}
	return nil
}
