// Package websocket carries broker frames over WebSocket connections.
//
// The broker listens on one port. Each accepted connection is a peer with
// its own address, and every text message is one payload.
package websocket

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/protocol"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Options for the websocket transport
type Options struct {
	ListenAddr   string
	Path         string
	BufferSize   int
	ReadLimit    int64
	WriteTimeout time.Duration
	// GoodbyeOnDisconnect makes a dropped connection look like a GOODBYE
	// from that peer
	GoodbyeOnDisconnect bool
	Logger              *slog.Logger
}

// DefaultOptions returns default websocket transport options
func DefaultOptions() Options {
	return Options{
		ListenAddr:          ":5555",
		Path:                "/ws",
		BufferSize:          256,
		ReadLimit:           32 << 20,
		WriteTimeout:        10 * time.Second,
		GoodbyeOnDisconnect: true,
	}
}

type conn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) write(ctx context.Context, payload []byte, timeout time.Duration) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// Transport implements the core.Transport interface over WebSocket
type Transport struct {
	options  Options
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu        sync.RWMutex
	conns     map[protocol.Address]*conn
	server    *http.Server
	listener  net.Listener
	connected bool
	closed    bool

	inbound chan protocol.Frame
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewTransport creates a new websocket transport
func NewTransport(options Options) *Transport {
	defaults := DefaultOptions()
	if options.Path == "" {
		options.Path = defaults.Path
	}
	if options.BufferSize <= 0 {
		options.BufferSize = defaults.BufferSize
	}
	if options.WriteTimeout <= 0 {
		options.WriteTimeout = defaults.WriteTimeout
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		options: options,
		upgrader: websocket.Upgrader{
			// workers are not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.With("component", "transport", "transport", "websocket"),
		conns:   make(map[protocol.Address]*conn),
		inbound: make(chan protocol.Frame, options.BufferSize),
		done:    make(chan struct{}),
	}
}

// Connect starts listening for worker connections
func (t *Transport) Connect(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return errors.ErrShutdown
	}
	if t.connected {
		return nil
	}

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", t.options.ListenAddr)
	if err != nil {
		return errors.NewConnectionError(t.options.ListenAddr,
			fmt.Errorf("failed to listen: %w", err))
	}

	mux := http.NewServeMux()
	mux.Handle(t.options.Path, t.Handler())
	t.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	t.listener = listener
	t.connected = true

	go func() {
		if err := t.server.Serve(listener); err != nil && err != http.ErrServerClosed {
			t.logger.Error("Websocket server stopped", "error", err)
		}
	}()

	t.logger.Info("Listening for workers", "addr", listener.Addr().String(), "path", t.options.Path)
	return nil
}

// Addr returns the address the transport listens on, once connected
func (t *Transport) Addr() string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if t.listener == nil {
		return ""
	}
	return t.listener.Addr().String()
}

// Handler upgrades HTTP requests to worker connections. It can be mounted on
// an existing server instead of calling Connect.
func (t *Transport) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := t.upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.logger.Error("WebSocket upgrade failed", "error", err)
			return
		}
		if t.options.ReadLimit > 0 {
			ws.SetReadLimit(t.options.ReadLimit)
		}

		addr := protocol.NewAddress(uuid.NewString())
		c := &conn{ws: ws}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			_ = ws.Close()
			return
		}
		t.conns[addr] = c
		t.wg.Add(1)
		t.mu.Unlock()

		t.logger.Debug("Worker connected", "peer", addr, "remote", r.RemoteAddr)
		go t.readLoop(addr, c)
	})
}

func (t *Transport) readLoop(addr protocol.Address, c *conn) {
	defer t.wg.Done()
	defer t.remove(addr)

	for {
		messageType, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.logger.Warn("WebSocket read error", "peer", addr, "error", err)
			}
			t.disconnected(addr)
			return
		}
		if messageType != websocket.TextMessage && messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case t.inbound <- protocol.Frame{Peer: addr, Payload: payload}:
		case <-t.done:
			return
		}
	}
}

// disconnected reports a dropped peer as a GOODBYE so the broker stops
// handing it work
func (t *Transport) disconnected(addr protocol.Address) {
	if !t.options.GoodbyeOnDisconnect {
		return
	}
	payload, err := protocol.Encode(protocol.Goodbye{})
	if err != nil {
		return
	}
	select {
	case t.inbound <- protocol.Frame{Peer: addr, Payload: payload}:
	case <-t.done:
	}
}

func (t *Transport) remove(addr protocol.Address) {
	t.mu.Lock()
	c, ok := t.conns[addr]
	delete(t.conns, addr)
	t.mu.Unlock()

	if ok {
		_ = c.ws.Close()
	}
}

// Close stops the listener and drops every connection
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.connected = false
	close(t.done)
	server := t.server
	conns := t.conns
	t.conns = make(map[protocol.Address]*conn)
	t.mu.Unlock()

	var err error
	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		err = server.Shutdown(ctx)
	}

	for _, c := range conns {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "broker shutting down"),
			time.Now().Add(time.Second))
		c.writeMu.Unlock()
		_ = c.ws.Close()
	}
	t.wg.Wait()

	return err
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
	return "websocket"
}

// Inbound returns frames received from workers
func (t *Transport) Inbound() <-chan protocol.Frame {
	return t.inbound
}

// Send writes a payload to the connection named by the frame
func (t *Transport) Send(ctx context.Context, frame protocol.Frame) error {
	t.mu.RLock()
	c, ok := t.conns[frame.Peer]
	t.mu.RUnlock()

	if !ok {
		return errors.NewBrokerError("send", frame.Peer.String(), errors.ErrWorkerNotFound)
	}
	if err := c.write(ctx, frame.Payload, t.options.WriteTimeout); err != nil {
		// a failed write leaves the connection unusable; closing it ends the
		// read loop, which reports the peer gone
		t.logger.Warn("WebSocket write failed, dropping peer", "peer", frame.Peer, "error", err)
		_ = c.ws.Close()
		return errors.NewBrokerError("send", frame.Peer.String(), err)
	}
	return nil
}

// Peers returns the number of open connections
func (t *Transport) Peers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return len(t.conns)
}
