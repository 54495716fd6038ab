// Package rabbitmq carries broker frames over RabbitMQ.
//
// Workers publish to the broker queue with ReplyTo set to their own
// exclusive queue. That queue name is the worker's address and dispatches
// are published to it through the default exchange. Deliveries are
// auto-acked: at-most-once, like every other transport.
package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/BranchIntl/gobroker/errors"
	"github.com/BranchIntl/gobroker/protocol"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Transport implements the core.Transport interface for RabbitMQ
type Transport struct {
	connection  *amqp.Connection
	channel     *amqp.Channel
	options     Options
	logger      *slog.Logger
	mu          sync.RWMutex
	notifyClose chan *amqp.Error
	isConnected bool
	closed      bool

	inbound chan protocol.Frame
	done    chan struct{}
}

// NewTransport creates a new RabbitMQ transport
func NewTransport(options Options) *Transport {
	defaults := DefaultOptions()
	if options.Queue == "" {
		options.Queue = defaults.Queue
	}
	if options.BufferSize <= 0 {
		options.BufferSize = defaults.BufferSize
	}
	if options.ReconnectDelay <= 0 {
		options.ReconnectDelay = defaults.ReconnectDelay
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Transport{
		options: options,
		logger:  logger.With("component", "transport", "transport", "rabbitmq"),
		inbound: make(chan protocol.Frame, options.BufferSize),
		done:    make(chan struct{}),
	}
}

// Connect establishes connection to RabbitMQ and starts consuming
func (r *Transport) Connect(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return errors.ErrShutdown
	}
	if r.isConnected {
		return nil
	}

	if err := r.connect(ctx); err != nil {
		return err
	}

	if r.options.ReconnectEnabled {
		go r.handleReconnection(r.notifyClose)
	}
	return nil
}

// connect establishes the connection and channel, declares the broker queue
// and starts the consumer. The caller must hold the lock.
func (r *Transport) connect(ctx context.Context) error {
	conn, err := amqp.Dial(r.options.URI)
	if err != nil {
		return errors.NewConnectionError(r.options.URI,
			fmt.Errorf("failed to connect to RabbitMQ: %w", err))
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return errors.NewConnectionError(r.options.URI,
			fmt.Errorf("failed to open channel: %w", err))
	}

	// Set QoS if specified
	if r.options.PrefetchCount > 0 {
		if err := ch.Qos(r.options.PrefetchCount, 0, false); err != nil {
			ch.Close()
			conn.Close()
			return errors.NewConnectionError(r.options.URI,
				fmt.Errorf("failed to set QoS: %w", err))
		}
	}

	_, err = ch.QueueDeclare(
		r.options.Queue, // name
		false,           // durable
		false,           // delete when unused
		false,           // exclusive
		false,           // no-wait
		buildQueueArgs(r.options.QueueOptions),
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return errors.NewBrokerError("declare_queue", r.options.Queue, err)
	}

	deliveries, err := ch.Consume(
		r.options.Queue, // queue
		"",              // consumer tag (auto-generated)
		true,            // auto-ack
		false,           // exclusive
		false,           // no-local
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return errors.NewBrokerError("consume", r.options.Queue, err)
	}

	r.connection = conn
	r.channel = ch

	// Watch for closing
	r.notifyClose = make(chan *amqp.Error, 1)
	r.connection.NotifyClose(r.notifyClose)
	r.isConnected = true

	go r.handleDeliveries(deliveries)

	r.logger.Info("Consuming broker queue", "queue", r.options.Queue)
	return nil
}

func (r *Transport) handleReconnection(notifyClose chan *amqp.Error) {
	for {
		select {
		case err, ok := <-notifyClose:
			if !ok || err == nil {
				return // Graceful shutdown
			}
			r.logger.Warn("Connection closed, reconnecting...", "error", err)

			r.mu.Lock()
			r.isConnected = false
			r.mu.Unlock()

			// Retry loop
			for {
				select {
				case <-r.done:
					return
				case <-time.After(r.options.ReconnectDelay):
				}

				r.mu.Lock()
				if r.closed {
					r.mu.Unlock()
					return
				}
				err := r.connect(context.Background())
				next := r.notifyClose
				r.mu.Unlock()

				if err == nil {
					r.logger.Info("Reconnected to RabbitMQ")
					notifyClose = next
					break
				}
				r.logger.Warn("Reconnect failed", "error", err)
			}
		case <-r.done:
			return
		}
	}
}

// handleDeliveries turns worker messages into inbound frames
func (r *Transport) handleDeliveries(deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-r.done:
			return
		case delivery, ok := <-deliveries:
			if !ok {
				r.logger.Debug("Delivery channel closed", "queue", r.options.Queue)
				return
			}
			if delivery.ReplyTo == "" {
				r.logger.Warn("Dropping message without reply-to", "message_id", delivery.MessageId)
				continue
			}

			select {
			case r.inbound <- protocol.Frame{Peer: protocol.NewAddress(delivery.ReplyTo), Payload: delivery.Body}:
			case <-r.done:
				return
			}
		}
	}
}

// Close closes the RabbitMQ connection
func (r *Transport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	r.isConnected = false
	close(r.done)

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			return err
		}
	}
	if r.connection != nil {
		return r.connection.Close()
	}
	return nil
}

// Health checks the RabbitMQ connection health
func (r *Transport) Health() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.isConnected || r.connection == nil || r.connection.IsClosed() {
		return errors.ErrNotConnected
	}
	return nil
}

// Type returns the transport type
func (r *Transport) Type() string {
	return "rabbitmq"
}

// Inbound returns frames received from workers
func (r *Transport) Inbound() <-chan protocol.Frame {
	return r.inbound
}

// Send publishes a payload to the worker's reply queue
func (r *Transport) Send(ctx context.Context, frame protocol.Frame) error {
	channel, err := r.getChannel()
	if err != nil {
		return err
	}

	err = channel.PublishWithContext(
		ctx,              // context
		"",               // exchange
		frame.Peer.Key(), // routing key (reply queue name)
		true,             // mandatory
		false,            // immediate
		amqp.Publishing{
			ContentType: "application/json",
			Body:        frame.Payload,
			Timestamp:   time.Now(),
		})
	if err != nil {
		return errors.NewBrokerError("send", frame.Peer.String(), err)
	}
	return nil
}

// getChannel returns the channel if connected, otherwise returns ErrNotConnected
func (r *Transport) getChannel() (*amqp.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.channel == nil || !r.isConnected {
		return nil, errors.ErrNotConnected
	}
	return r.channel, nil
}
