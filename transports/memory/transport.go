// Package memory is an in-process transport. Workers attach with Dial and
// talk to the broker over channels, which makes it the transport of choice
// for tests and single-binary deployments.
package memory

import (
	"context"
	"sync"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/protocol"
	"github.com/google/uuid"
)

// Options for the memory transport
type Options struct {
	// BufferSize is the capacity of the inbound channel and of each peer's
	// receive channel
	BufferSize int
}

// DefaultOptions returns default memory transport options
func DefaultOptions() Options {
	return Options{BufferSize: 256}
}

// Transport implements the core.Transport interface using channels
type Transport struct {
	mu        sync.RWMutex
	peers     map[protocol.Address]*Peer
	inbound   chan protocol.Frame
	done      chan struct{}
	connected bool
	closed    bool
	options   Options
}

// NewTransport creates a new in-memory transport
func NewTransport(options Options) *Transport {
	if options.BufferSize <= 0 {
		options.BufferSize = DefaultOptions().BufferSize
	}
	return &Transport{
		peers:   make(map[protocol.Address]*Peer),
		inbound: make(chan protocol.Frame, options.BufferSize),
		done:    make(chan struct{}),
		options: options,
	}
}

// Connect marks the transport as connected
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.ErrShutdown
	}
	t.connected = true
	return nil
}

// Close detaches every peer
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	t.connected = false
	close(t.done)
	t.peers = make(map[protocol.Address]*Peer)
	return nil
}

// Health checks the transport health
func (t *Transport) Health() error {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.connected {
		return errors.ErrNotConnected
	}
	return nil
}

// Type returns the transport type
func (t *Transport) Type() string {
	return "memory"
}

// Inbound returns frames sent by peers
func (t *Transport) Inbound() <-chan protocol.Frame {
	return t.inbound
}

// Send delivers a payload to the peer named by the frame
func (t *Transport) Send(ctx context.Context, frame protocol.Frame) error {
	t.mu.RLock()
	peer, ok := t.peers[frame.Peer]
	connected := t.connected
	t.mu.RUnlock()

	if !connected {
		return errors.ErrNotConnected
	}
	if !ok {
		return errors.NewBrokerError("send", frame.Peer.String(), errors.ErrWorkerNotFound)
	}

	select {
	case peer.incoming <- frame.Payload:
		return nil
	case <-peer.done:
		return errors.NewBrokerError("send", frame.Peer.String(), errors.ErrWorkerNotFound)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dial attaches a new peer with a random address
func (t *Transport) Dial() (*Peer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, errors.ErrShutdown
	}

	peer := &Peer{
		addr:      protocol.NewAddress(uuid.NewString()),
		transport: t,
		incoming:  make(chan []byte, t.options.BufferSize),
		done:      make(chan struct{}),
	}
	t.peers[peer.addr] = peer
	return peer, nil
}

func (t *Transport) detach(addr protocol.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.peers, addr)
}

// Peer is the worker side of a memory transport connection
type Peer struct {
	addr      protocol.Address
	transport *Transport
	incoming  chan []byte
	done      chan struct{}
	once      sync.Once
}

// Address returns the address the broker sees for this peer
func (p *Peer) Address() protocol.Address {
	return p.addr
}

// Send hands a payload to the broker
func (p *Peer) Send(ctx context.Context, payload []byte) error {
	select {
	case p.transport.inbound <- protocol.Frame{Peer: p.addr, Payload: payload}:
		return nil
	case <-p.done:
		return errors.ErrShutdown
	case <-p.transport.done:
		return errors.ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive waits for the next payload from the broker
func (p *Peer) Receive(ctx context.Context) ([]byte, error) {
	select {
	case payload := <-p.incoming:
		return payload, nil
	case <-p.done:
		return nil, errors.ErrShutdown
	case <-p.transport.done:
		return nil, errors.ErrNotConnected
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close detaches the peer
func (p *Peer) Close() error {
	p.once.Do(func() {
		close(p.done)
		p.transport.detach(p.addr)
	})
	return nil
}
