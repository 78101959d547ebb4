package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-dispatch/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var _ Consumer = (*RabbitMQConsumer)(nil)

type RabbitMQConsumer struct {
	client *RabbitMQ
	logger *zap.Logger
}

func NewRabbitMQConsumer(client *RabbitMQ, logger *zap.Logger) *RabbitMQConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RabbitMQConsumer{
		client: client,
		logger: logger,
	}
}

// Consume processes work queue deliveries one at a time until ctx is done, re-establishing
// the broker channel with backoff whenever it closes.
func (c *RabbitMQConsumer) Consume(ctx context.Context, handler MessageHandler) error {
	if c == nil || c.client == nil {
		return fmt.Errorf("consumer is not initialized")
	}
	if handler == nil {
		return fmt.Errorf("message handler is required")
	}

	backoff := reconnectBackoff
	for {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = reconnectBackoff
			continue
		}

		c.logger.Warn("consumer interrupted, reconnecting",
			zap.Error(err),
			zap.Duration("backoff", backoff),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *RabbitMQConsumer) consumeOnce(ctx context.Context, handler MessageHandler) error {
	ch, err := c.client.channel(ctx)
	if err != nil {
		return err
	}

	deliveries, err := ch.Consume(
		WorkQueueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to consume queue %q: %w", WorkQueueName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}

			if err := c.handleDelivery(ctx, d, handler); err != nil {
				return err
			}
		}
	}
}

func (c *RabbitMQConsumer) handleDelivery(ctx context.Context, d amqp.Delivery, handler MessageHandler) error {
	msg, err := messageFromDelivery(d)
	if err != nil {
		c.logger.Warn("rejecting message: invalid envelope",
			zap.Error(err),
			zap.String(observability.FieldMessageID, d.MessageId),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("failed to reject invalid envelope: %w", rejectErr)
		}
		return nil
	}

	if msg.CorrelationID != "" {
		ctx = observability.WithCorrelationID(ctx, msg.CorrelationID)
	}
	ctx = observability.WithMessageID(ctx, msg.ID)

	if err := handler(ctx, msg); err != nil {
		if ctx.Err() != nil {
			// Left unacknowledged; the broker redelivers it once the channel closes.
			return ctx.Err()
		}
		observability.WithContextLogger(c.logger, ctx).Error("handler failed, rejecting message to dead-letter exchange",
			zap.Error(err),
		)
		if rejectErr := d.Reject(false); rejectErr != nil {
			return fmt.Errorf("handler failed and reject failed: %w", rejectErr)
		}
		return nil
	}

	if err := d.Ack(false); err != nil {
		return fmt.Errorf("failed to ack delivery: %w", err)
	}

	return nil
}
