package nats

import (
	"context"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/nats-io/nats.go"
)

// Peer is the worker side of the nats transport
type Peer struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	inbox   string
}

// DialPeer connects a worker that publishes to subject and receives on a
// private inbox
func DialPeer(url, subject string) (*Peer, error) {
	if subject == "" {
		subject = DefaultOptions().Subject
	}

	nc, err := nats.Connect(url)
	if err != nil {
		return nil, errors.NewConnectionError(url, err)
	}

	inbox := nc.NewInbox()
	sub, err := nc.SubscribeSync(inbox)
	if err != nil {
		nc.Close()
		return nil, errors.NewConnectionError(url, err)
	}
	if err := nc.Flush(); err != nil {
		nc.Close()
		return nil, errors.NewConnectionError(url, err)
	}

	return &Peer{nc: nc, sub: sub, subject: subject, inbox: inbox}, nil
}

// Inbox returns the subject this peer receives on
func (p *Peer) Inbox() string {
	return p.inbox
}

// Send publishes a payload to the broker subject
func (p *Peer) Send(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return p.nc.PublishMsg(&nats.Msg{Subject: p.subject, Reply: p.inbox, Data: payload})
}

// Receive waits for the next dispatch
func (p *Peer) Receive(ctx context.Context) ([]byte, error) {
	msg, err := p.sub.NextMsgWithContext(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, errors.NewConnectionError(p.nc.ConnectedUrl(), err)
	}
	return msg.Data, nil
}

// Close drops the subscription and connection
func (p *Peer) Close() error {
	err := p.sub.Unsubscribe()
	p.nc.Close()
	if err == nats.ErrConnectionClosed {
		return nil
	}
	return err
}
