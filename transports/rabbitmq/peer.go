package rabbitmq

import (
	"context"
	"fmt"
	"sync"

	"github.com/BranchIntl/gobroker/errors"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Peer is the worker side of the RabbitMQ transport
type Peer struct {
	connection *amqp.Connection
	channel    *amqp.Channel
	queue      string
	replyTo    string
	deliveries <-chan amqp.Delivery
	once       sync.Once
}

// DialPeer connects a worker. It declares an exclusive, server-named queue
// that becomes the worker's address.
func DialPeer(options Options) (*Peer, error) {
	if options.Queue == "" {
		options.Queue = DefaultOptions().Queue
	}

	conn, err := amqp.Dial(options.URI)
	if err != nil {
		return nil, errors.NewConnectionError(options.URI,
			fmt.Errorf("failed to connect to RabbitMQ: %w", err))
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, errors.NewConnectionError(options.URI,
			fmt.Errorf("failed to open channel: %w", err))
	}

	q, err := ch.QueueDeclare(
		"",    // name (server generated)
		false, // durable
		true,  // delete when unused
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.NewBrokerError("declare_queue", "", err)
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, errors.NewBrokerError("consume", q.Name, err)
	}

	return &Peer{
		connection: conn,
		channel:    ch,
		queue:      options.Queue,
		replyTo:    q.Name,
		deliveries: deliveries,
	}, nil
}

// ReplyTo returns the queue this peer receives on
func (p *Peer) ReplyTo() string {
	return p.replyTo
}

// Send publishes a payload to the broker queue
func (p *Peer) Send(ctx context.Context, payload []byte) error {
	err := p.channel.PublishWithContext(ctx, "", p.queue, false, false, amqp.Publishing{
		ContentType: "application/json",
		ReplyTo:     p.replyTo,
		Body:        payload,
	})
	if err != nil {
		return errors.NewBrokerError("send", p.queue, err)
	}
	return nil
}

// Receive waits for the next dispatch
func (p *Peer) Receive(ctx context.Context) ([]byte, error) {
	select {
	case delivery, ok := <-p.deliveries:
		if !ok {
			return nil, errors.ErrNotConnected
		}
		return delivery.Body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the channel and connection
func (p *Peer) Close() error {
	var err error
	p.once.Do(func() {
		if cerr := p.channel.Close(); cerr != nil {
			err = cerr
		}
		if cerr := p.connection.Close(); cerr != nil && err == nil {
			err = cerr
		}
	})
	return err
}
