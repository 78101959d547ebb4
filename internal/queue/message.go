package queue

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/kursadbilgin/notification-dispatch/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Message is a payload body plus its envelope metadata. Body is never modified after the
// first publish; retries and dead-lettering only change the envelope.
type Message struct {
	ID            string
	CorrelationID string
	Body          []byte
	Envelope      domain.Envelope
}

func (m Message) headers() amqp.Table {
	headers := amqp.Table{
		HeaderRetryCount: int32(m.Envelope.RetryCount),
	}
	if m.Envelope.LastError != "" {
		headers[HeaderLastError] = m.Envelope.LastError
	}
	return headers
}

func (m Message) publishing() amqp.Publishing {
	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		MessageId:     m.ID,
		CorrelationId: m.CorrelationID,
		Headers:       m.headers(),
		Body:          m.Body,
	}
}

func messageFromDelivery(d amqp.Delivery) (Message, error) {
	retryCount, err := headerInt(d.Headers, HeaderRetryCount)
	if err != nil {
		return Message{}, err
	}

	lastError, _ := d.Headers[HeaderLastError].(string)

	return Message{
		ID:            d.MessageId,
		CorrelationID: d.CorrelationId,
		Body:          d.Body,
		Envelope: domain.Envelope{
			RetryCount: retryCount,
			LastError:  lastError,
		},
	}, nil
}

// headerInt reads an integer header. AMQP peers encode integers with varying widths.
func headerInt(headers amqp.Table, key string) (int, error) {
	raw, ok := headers[key]
	if !ok || raw == nil {
		return 0, nil
	}

	var value int64
	switch v := raw.(type) {
	case int:
		value = int64(v)
	case int8:
		value = int64(v)
	case int16:
		value = int64(v)
	case int32:
		value = int64(v)
	case int64:
		value = v
	case uint8:
		value = int64(v)
	case uint16:
		value = int64(v)
	case uint32:
		value = int64(v)
	case float32:
		value = int64(v)
	case float64:
		value = int64(v)
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s header %q: %w", key, v, err)
		}
		value = parsed
	default:
		return 0, fmt.Errorf("invalid %s header type %T", key, raw)
	}

	if value < 0 || value > math.MaxInt32 {
		return 0, fmt.Errorf("%s header out of range: %d", key, value)
	}
	return int(value), nil
}
