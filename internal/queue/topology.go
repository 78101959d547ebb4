package queue

import (
	"fmt"

	"github.com/kursadbilgin/notification-dispatch/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// TopologyDeclarer declares broker exchanges, queues, and bindings.
type TopologyDeclarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// WorkQueueArgs returns the arguments the work queue is declared with.
func WorkQueueArgs() amqp.Table {
	return amqp.Table{
		"x-dead-letter-exchange":    DeadLetterExchange,
		"x-dead-letter-routing-key": DeadLetterRoutingKey,
		"x-message-ttl":             int32(MessageTTL.Milliseconds()),
	}
}

// EnsureTopology idempotently declares the dead-letter exchange and queue, binds them,
// and then declares the work queue that references them. Every failure wraps domain.ErrTopology.
func EnsureTopology(ch TopologyDeclarer) error {
	if ch == nil {
		return fmt.Errorf("%w: channel is required", domain.ErrTopology)
	}

	if err := ch.ExchangeDeclare(
		DeadLetterExchange,
		amqp.ExchangeDirect,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("%w: declare exchange %q: %v", domain.ErrTopology, DeadLetterExchange, err)
	}

	if _, err := ch.QueueDeclare(
		DeadLetterQueueName,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("%w: declare queue %q: %v", domain.ErrTopology, DeadLetterQueueName, err)
	}

	if err := ch.QueueBind(DeadLetterQueueName, DeadLetterRoutingKey, DeadLetterExchange, false, nil); err != nil {
		return fmt.Errorf("%w: bind queue %q: %v", domain.ErrTopology, DeadLetterQueueName, err)
	}

	if _, err := ch.QueueDeclare(
		WorkQueueName,
		true,
		false,
		false,
		false,
		WorkQueueArgs(),
	); err != nil {
		return fmt.Errorf("%w: declare queue %q: %v", domain.ErrTopology, WorkQueueName, err)
	}

	return nil
}
