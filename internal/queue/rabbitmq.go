package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kursadbilgin/notification-dispatch/internal/domain"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	reconnectBackoff = time.Second
	maxBackoff       = 30 * time.Second

	// prefetchCount keeps one unacknowledged message in flight per consumer.
	prefetchCount = 1
)

type connection interface {
	Channel() (Channel, error)
	IsClosed() bool
	Close() error
}

type amqpConnection struct {
	conn *amqp.Connection
}

func (c amqpConnection) Channel() (Channel, error) {
	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	return ch, nil
}

func (c amqpConnection) IsClosed() bool { return c.conn.IsClosed() }
func (c amqpConnection) Close() error   { return c.conn.Close() }

func dialAMQP(url string) (connection, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	return amqpConnection{conn: conn}, nil
}

// RabbitMQ owns the broker connection and the single channel shared by the publisher and consumer.
type RabbitMQ struct {
	url  string
	dial func(url string) (connection, error)

	mu          sync.RWMutex
	reconnectMu sync.Mutex
	conn        connection
	ch          Channel
	// closed blocks lazy reconnects after Close until Connect is called again.
	closed bool
}

func NewRabbitMQ(url string) (*RabbitMQ, error) {
	return newRabbitMQ(url, dialAMQP)
}

func newRabbitMQ(url string, dial func(url string) (connection, error)) (*RabbitMQ, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("rabbitmq url is required")
	}
	if dial == nil {
		dial = dialAMQP
	}
	return &RabbitMQ{url: url, dial: dial}, nil
}

// Connect dials the broker, opens the shared channel, and declares the topology.
// It retries the dial with backoff until ctx is done; topology failures are returned immediately.
func (r *RabbitMQ) Connect(ctx context.Context) error {
	r.mu.Lock()
	r.closed = false
	r.mu.Unlock()

	if err := r.reconnectWithBackoff(ctx); err != nil {
		return err
	}

	r.mu.RLock()
	ch := r.ch
	r.mu.RUnlock()

	return EnsureTopology(ch)
}

func (r *RabbitMQ) Close() error {
	r.mu.Lock()
	conn := r.conn
	ch := r.ch
	r.conn = nil
	r.ch = nil
	r.closed = true
	r.mu.Unlock()

	if ch != nil && !ch.IsClosed() {
		_ = ch.Close()
	}
	if conn == nil || conn.IsClosed() {
		return nil
	}
	return conn.Close()
}

// IsConnected reports whether the shared channel is open.
func (r *RabbitMQ) IsConnected() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ch != nil && !r.ch.IsClosed()
}

func (r *RabbitMQ) channel(ctx context.Context) (Channel, error) {
	r.mu.RLock()
	ch := r.ch
	closed := r.closed
	r.mu.RUnlock()

	if closed {
		return nil, domain.ErrBrokerClosed
	}
	if ch != nil && !ch.IsClosed() {
		return ch, nil
	}

	if err := r.reconnectWithBackoff(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	ch = r.ch
	r.mu.RUnlock()
	if ch == nil {
		return nil, fmt.Errorf("rabbitmq channel is not available")
	}
	return ch, nil
}

func (r *RabbitMQ) reconnectWithBackoff(ctx context.Context) error {
	r.reconnectMu.Lock()
	defer r.reconnectMu.Unlock()

	r.mu.RLock()
	ch := r.ch
	r.mu.RUnlock()
	if ch != nil && !ch.IsClosed() {
		return nil
	}

	wait := reconnectBackoff
	for {
		err := r.open()
		if err == nil || errors.Is(err, domain.ErrBrokerClosed) {
			return err
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("rabbitmq connect canceled: %w (last error: %v)", ctx.Err(), err)
		case <-time.After(wait):
		}

		wait *= 2
		if wait > maxBackoff {
			wait = maxBackoff
		}
	}
}

func (r *RabbitMQ) open() error {
	r.mu.RLock()
	conn := r.conn
	closed := r.closed
	r.mu.RUnlock()
	if closed {
		return domain.ErrBrokerClosed
	}

	if conn == nil || conn.IsClosed() {
		newConn, err := r.dial(r.url)
		if err != nil {
			return fmt.Errorf("failed to dial rabbitmq: %w", err)
		}
		conn = newConn
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open rabbitmq channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}
	if err := ch.Qos(prefetchCount, 0, false); err != nil {
		_ = ch.Close()
		return fmt.Errorf("failed to set qos: %w", err)
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		_ = ch.Close()
		_ = conn.Close()
		return domain.ErrBrokerClosed
	}
	oldConn := r.conn
	r.conn = conn
	r.ch = ch
	r.mu.Unlock()

	if oldConn != nil && oldConn != conn && !oldConn.IsClosed() {
		_ = oldConn.Close()
	}
	return nil
}
