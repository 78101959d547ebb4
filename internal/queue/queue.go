package queue

import (
	"context"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	WorkQueueName        = "notification_queue"
	DeadLetterQueueName  = "notification_dlq"
	DeadLetterExchange   = "notification_dlx"
	DeadLetterRoutingKey = "notification_routing_key"

	// MessageTTL bounds how long a message may wait in the work queue.
	MessageTTL = 24 * time.Hour

	HeaderRetryCount = "x-retry-count"
	HeaderLastError  = "x-last-error"
)

// Publisher writes messages to the broker.
type Publisher interface {
	// Publish enqueues msg on the work queue.
	Publish(ctx context.Context, msg Message) error
	// PublishDeadLetter routes msg to the dead-letter exchange.
	PublishDeadLetter(ctx context.Context, msg Message) error
}

// MessageHandler handles a consumed message. A nil return acknowledges the delivery;
// an error rejects it without requeue so queue-level dead-lettering takes over.
type MessageHandler func(ctx context.Context, msg Message) error

// Consumer delivers work queue messages to a handler until ctx is done.
type Consumer interface {
	Consume(ctx context.Context, handler MessageHandler) error
}

// Channel is the subset of *amqp.Channel used by this package.
type Channel interface {
	TopologyDeclarer
	Qos(prefetchCount, prefetchSize int, global bool) error
	Confirm(noWait bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp.Table) (<-chan amqp.Delivery, error)
	PublishWithDeferredConfirmWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) (*amqp.DeferredConfirmation, error)
	IsClosed() bool
	Close() error
}

var _ Channel = (*amqp.Channel)(nil)
