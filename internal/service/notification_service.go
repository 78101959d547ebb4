package service

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatch/internal/domain"
	"github.com/kursadbilgin/notification-dispatch/internal/observability"
	"github.com/kursadbilgin/notification-dispatch/internal/provider"
	"github.com/kursadbilgin/notification-dispatch/internal/queue"
	"go.uber.org/zap"
)

type state int32

const (
	stateUninitialized state = iota
	stateInitializing
	stateReady
)

// Broker is the connection lifecycle the service owns.
type Broker interface {
	Connect(ctx context.Context) error
	IsConnected() bool
	Close() error
}

// NotificationService is the entry point business code uses to enqueue notifications. It owns
// the broker handle and the background consumer.
type NotificationService struct {
	broker    Broker
	publisher queue.Publisher
	consumer  queue.Consumer
	mailer    provider.EmailTransport
	engine    *RetryEngine
	logger    *zap.Logger
	metrics   *observability.Metrics
	newID     func() string

	mu           sync.Mutex
	state        atomic.Int32
	stopConsumer context.CancelFunc
	consumerDone chan struct{}
}

func NewNotificationService(
	broker Broker,
	publisher queue.Publisher,
	consumer queue.Consumer,
	mailer provider.EmailTransport,
	engine *RetryEngine,
	logger *zap.Logger,
) (*NotificationService, error) {
	if broker == nil {
		return nil, fmt.Errorf("broker is required")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer is required")
	}
	if mailer == nil {
		return nil, fmt.Errorf("mail transport is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("retry engine is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &NotificationService{
		broker:    broker,
		publisher: publisher,
		consumer:  consumer,
		mailer:    mailer,
		engine:    engine,
		logger:    logger,
		newID:     uuid.NewString,
	}, nil
}

func (s *NotificationService) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

// Initialize verifies the mail relay, connects to the broker, declares the topology and starts
// the consumer. It is a no-op once the service is ready; on failure the service stays uninitialized.
func (s *NotificationService) Initialize(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.IsInitialized() {
		return nil
	}
	s.state.Store(int32(stateInitializing))

	if err := s.mailer.Verify(ctx); err != nil {
		s.state.Store(int32(stateUninitialized))
		return fmt.Errorf("mail transport verification failed: %w", err)
	}

	if err := s.broker.Connect(ctx); err != nil {
		s.state.Store(int32(stateUninitialized))
		_ = s.broker.Close()
		return fmt.Errorf("broker initialization failed: %w", err)
	}

	consumeCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := s.consumer.Consume(consumeCtx, s.engine.Handle); err != nil {
			s.logger.Error("notification consumer stopped with error", zap.Error(err))
		}
	}()

	s.stopConsumer = cancel
	s.consumerDone = done
	s.state.Store(int32(stateReady))

	s.logger.Info("notification service initialized", zap.String("queue", queue.WorkQueueName))
	return nil
}

func (s *NotificationService) IsInitialized() bool {
	return state(s.state.Load()) == stateReady
}

// Ready reports whether the service is initialized and its broker channel is open.
func (s *NotificationService) Ready() bool {
	return s.IsInitialized() && s.broker.IsConnected()
}

// SendNotification validates and enqueues payload. It returns once the broker has accepted the
// message and never waits for delivery.
func (s *NotificationService) SendNotification(ctx context.Context, payload domain.Payload) error {
	if !s.IsInitialized() {
		return domain.ErrNotInitialized
	}
	if err := payload.Validate(); err != nil {
		return err
	}

	body, err := payload.Marshal()
	if err != nil {
		return err
	}

	msg := queue.Message{
		ID:   s.newID(),
		Body: body,
	}
	msg.CorrelationID = msg.ID
	if correlationID, ok := observability.CorrelationIDFromContext(ctx); ok {
		msg.CorrelationID = correlationID
	}

	ctx = observability.WithMessageID(ctx, msg.ID)
	if err := s.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("failed to enqueue notification: %w", err)
	}

	s.metrics.IncQueued(payload.Type.String())
	observability.WithContextLogger(s.logger, ctx).Info("notification queued",
		zap.String(observability.FieldType, payload.Type.String()),
		zap.String("recipient", payload.Recipient),
	)
	return nil
}

// Close stops the consumer, waits for pending retry republishes, and closes the broker.
func (s *NotificationService) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.state.Store(int32(stateUninitialized))

	if s.stopConsumer != nil {
		s.stopConsumer()
		select {
		case <-s.consumerDone:
		case <-ctx.Done():
			s.logger.Warn("timed out waiting for notification consumer to stop")
		}
		s.stopConsumer = nil
		s.consumerDone = nil
	}

	if err := s.engine.Drain(ctx); err != nil {
		s.logger.Warn("pending retries not republished before shutdown", zap.Error(err))
	}

	return s.broker.Close()
}

var defaultService atomic.Pointer[NotificationService]

// SetDefault installs the process-wide service. The first call wins; later calls return the
// already installed instance.
func SetDefault(s *NotificationService) *NotificationService {
	defaultService.CompareAndSwap(nil, s)
	return defaultService.Load()
}

// Default returns the process-wide service, or nil if none was installed.
func Default() *NotificationService {
	return defaultService.Load()
}
