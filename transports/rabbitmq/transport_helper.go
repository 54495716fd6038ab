package rabbitmq

import (
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// buildQueueArgs creates the AMQP arguments table from options
func buildQueueArgs(options QueueOptions) amqp.Table {
	args := amqp.Table{}

	// Set message TTL if specified
	if options.MessageTTL > 0 {
		args["x-message-ttl"] = int64(options.MessageTTL / time.Millisecond)
	}

	// Cap the backlog of unread worker messages
	if options.MaxLength > 0 {
		args["x-max-length"] = options.MaxLength
		args["x-overflow"] = "reject-publish"
	}

	// Set queue type if specified
	if options.QueueType != "" {
		args["x-queue-type"] = options.QueueType
	}

	return args
}
