package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/gorilla/websocket"
)

// Peer is the worker side of a websocket connection
type Peer struct {
	conn     *conn
	incoming chan []byte
	done     chan struct{}
	once     sync.Once

	mu      sync.Mutex
	readErr error
}

// Dial connects a worker to the broker at url (ws://host:port/path)
func Dial(ctx context.Context, url string) (*Peer, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, errors.NewConnectionError(url, err)
	}

	p := &Peer{
		conn:     &conn{ws: ws},
		incoming: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	go p.readLoop()
	return p, nil
}

func (p *Peer) readLoop() {
	defer close(p.incoming)

	for {
		_, payload, err := p.conn.ws.ReadMessage()
		if err != nil {
			p.mu.Lock()
			p.readErr = err
			p.mu.Unlock()
			return
		}
		select {
		case p.incoming <- payload:
		case <-p.done:
			return
		}
	}
}

// Send writes a payload to the broker
func (p *Peer) Send(ctx context.Context, payload []byte) error {
	select {
	case <-p.done:
		return errors.ErrShutdown
	default:
	}
	return p.conn.write(ctx, payload, 10*time.Second)
}

// Receive waits for the next payload from the broker
func (p *Peer) Receive(ctx context.Context) ([]byte, error) {
	select {
	case payload, ok := <-p.incoming:
		if !ok {
			p.mu.Lock()
			err := p.readErr
			p.mu.Unlock()
			if err == nil {
				err = errors.ErrShutdown
			}
			return nil, errors.NewConnectionError("broker", err)
		}
		return payload, nil
	case <-p.done:
		return nil, errors.ErrShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close sends a close frame and drops the connection
func (p *Peer) Close() error {
	var err error
	p.once.Do(func() {
		close(p.done)
		p.conn.writeMu.Lock()
		_ = p.conn.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		p.conn.writeMu.Unlock()
		err = p.conn.ws.Close()
	})
	return err
}
