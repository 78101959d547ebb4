package queue

import (
	"context"
	"fmt"
	"sync"
	"time"
)

var _ Publisher = (*RabbitMQPublisher)(nil)

// RabbitMQPublisher publishes persistent messages on the shared channel and waits for
// publisher confirms when the channel is in confirm mode.
type RabbitMQPublisher struct {
	client *RabbitMQ
	mu     sync.Mutex
	now    func() time.Time
}

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, msg Message) error {
	return p.publish(ctx, "", WorkQueueName, msg)
}

func (p *RabbitMQPublisher) PublishDeadLetter(ctx context.Context, msg Message) error {
	return p.publish(ctx, DeadLetterExchange, DeadLetterRoutingKey, msg)
}

func (p *RabbitMQPublisher) publish(ctx context.Context, exchange, key string, msg Message) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}
	if len(msg.Body) == 0 {
		return fmt.Errorf("message body is required")
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}

	publishing := msg.publishing()
	publishing.Timestamp = p.now().UTC()

	// One publish at a time on the shared channel.
	p.mu.Lock()
	confirmation, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, publishing)
	p.mu.Unlock()
	if err != nil {
		return fmt.Errorf("failed to publish message to %q: %w", destination(exchange, key), err)
	}

	// Channels outside confirm mode return no confirmation.
	if confirmation == nil {
		return nil
	}

	acked, err := confirmation.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to confirm message to %q: %w", destination(exchange, key), err)
	}
	if !acked {
		return fmt.Errorf("broker nacked message %q to %q", msg.ID, destination(exchange, key))
	}

	return nil
}

func destination(exchange, key string) string {
	if exchange == "" {
		return key
	}
	return exchange + "/" + key
}
