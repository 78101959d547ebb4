package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-dispatch/internal/domain"
	"github.com/kursadbilgin/notification-dispatch/internal/observability"
	"github.com/kursadbilgin/notification-dispatch/internal/provider"
	"github.com/kursadbilgin/notification-dispatch/internal/queue"
	"github.com/kursadbilgin/notification-dispatch/internal/ratelimit"
	"github.com/kursadbilgin/notification-dispatch/internal/repository"
	"go.uber.org/zap"
)

const (
	// MaxRetries is the number of republishes after the first failed attempt.
	MaxRetries = 3

	baseRetryDelay   = time.Second
	republishTimeout = 10 * time.Second
)

const (
	ReasonRetriesExhausted = "retries_exhausted"
	ReasonNonRetryable     = "non_retryable"
	ReasonMalformed        = "malformed"
)

// RetryDelay is the wait before republishing a message that has already been retried retryCount times.
func RetryDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	return baseRetryDelay << retryCount
}

// NotificationDispatcher delivers a decoded payload through its transport.
type NotificationDispatcher interface {
	Dispatch(ctx context.Context, p domain.Payload) error
}

// RetryEngine handles consumed messages: it dispatches them, schedules delayed republishes
// for retryable failures and dead-letters the rest.
type RetryEngine struct {
	publisher   queue.Publisher
	dispatcher  NotificationDispatcher
	scheduler   Scheduler
	limiter     ratelimit.RateLimiter
	attempts    repository.AttemptRepository
	deadLetters repository.DeadLetterRepository
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewRetryEngine(
	publisher queue.Publisher,
	dispatcher NotificationDispatcher,
	scheduler Scheduler,
	logger *zap.Logger,
) (*RetryEngine, error) {
	if publisher == nil {
		return nil, fmt.Errorf("publisher is required")
	}
	if dispatcher == nil {
		return nil, fmt.Errorf("dispatcher is required")
	}
	if scheduler == nil {
		scheduler = NewTimerScheduler()
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &RetryEngine{
		publisher:  publisher,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		limiter:    ratelimit.Unlimited{},
		logger:     logger,
		now:        time.Now,
	}, nil
}

// SetLedger enables attempt and dead-letter recording. Either repository may be nil.
func (e *RetryEngine) SetLedger(attempts repository.AttemptRepository, deadLetters repository.DeadLetterRepository) {
	if e == nil {
		return
	}
	e.attempts = attempts
	e.deadLetters = deadLetters
}

func (e *RetryEngine) SetRateLimiter(limiter ratelimit.RateLimiter) {
	if e == nil || limiter == nil {
		return
	}
	e.limiter = limiter
}

func (e *RetryEngine) SetMetrics(metrics *observability.Metrics) {
	if e == nil {
		return
	}
	e.metrics = metrics
}

// Handle processes one consumed message. It returns nil once the message has been delivered,
// scheduled for retry, or dead-lettered; an error means the delivery must be rejected.
func (e *RetryEngine) Handle(ctx context.Context, msg queue.Message) error {
	ctx = observability.WithMessageID(ctx, msg.ID)
	base := observability.WithContextLogger(e.logger, ctx)

	payload, err := domain.DecodePayload(msg.Body)
	if err != nil {
		logger := base.With(observability.NotificationFields("", msg.Envelope.RetryCount)...)
		return e.deadLetter(ctx, logger, msg, "", err, ReasonMalformed)
	}

	notificationType := payload.Type.String()
	logger := base.With(observability.NotificationFields(notificationType, msg.Envelope.RetryCount)...)

	e.metrics.IncInFlight(notificationType)
	defer e.metrics.DecInFlight(notificationType)

	sendErr := e.send(ctx, payload)
	e.recordAttempt(ctx, logger, msg, payload, sendErr)

	if sendErr == nil {
		e.metrics.IncDelivered(notificationType)
		logger.Info("notification delivered", zap.String("recipient", payload.Recipient))
		return nil
	}

	if ctx.Err() != nil {
		return fmt.Errorf("delivery interrupted: %w", errors.Join(ctx.Err(), sendErr))
	}

	if !provider.IsRetryable(sendErr) {
		return e.deadLetter(ctx, logger, msg, payload.Type, sendErr, ReasonNonRetryable)
	}
	if msg.Envelope.RetryCount >= MaxRetries {
		return e.deadLetter(ctx, logger, msg, payload.Type, sendErr, ReasonRetriesExhausted)
	}

	e.scheduleRetry(logger, msg, payload.Type, sendErr)
	return nil
}

func (e *RetryEngine) send(ctx context.Context, payload domain.Payload) error {
	if err := e.limiter.Wait(ctx, payload.Type.String()); err != nil {
		return fmt.Errorf("send limiter: %w", err)
	}

	start := e.now()
	err := e.dispatcher.Dispatch(ctx, payload)
	e.metrics.ObserveSendDuration(payload.Type.String(), e.now().Sub(start))
	return err
}

func (e *RetryEngine) scheduleRetry(logger *zap.Logger, msg queue.Message, notificationType domain.Type, cause error) {
	next := msg
	next.Envelope = domain.Envelope{
		RetryCount: msg.Envelope.RetryCount + 1,
		LastError:  cause.Error(),
	}
	delay := RetryDelay(msg.Envelope.RetryCount)

	e.scheduler.AfterFunc(delay, func() {
		ctx := observability.WithCorrelationID(context.Background(), next.CorrelationID)
		ctx, cancel := context.WithTimeout(ctx, republishTimeout)
		defer cancel()

		if err := e.publisher.Publish(ctx, next); err != nil {
			logger.Error("failed to republish notification for retry",
				zap.Int(observability.FieldNextRetryCount, next.Envelope.RetryCount),
				zap.Error(err),
			)
		}
	})

	e.metrics.IncRetried(notificationType.String())
	logger.Warn("notification retry scheduled",
		zap.Int(observability.FieldNextRetryCount, next.Envelope.RetryCount),
		zap.Duration("delay", delay),
		zap.Error(cause),
	)
}

// deadLetter publishes the unchanged body to the dead-letter exchange. When that publish fails
// the error is returned so the delivery is rejected and queue-level dead-lettering routes it instead.
func (e *RetryEngine) deadLetter(
	ctx context.Context,
	logger *zap.Logger,
	msg queue.Message,
	notificationType domain.Type,
	cause error,
	reason string,
) error {
	dead := msg
	dead.Envelope = domain.Envelope{
		RetryCount: msg.Envelope.RetryCount,
		LastError:  cause.Error(),
	}

	publishErr := e.publisher.PublishDeadLetter(ctx, dead)

	e.recordDeadLetter(ctx, logger, dead, notificationType, reason)
	e.metrics.IncDeadLettered(notificationType.String(), reason)
	logger.Error("notification dead-lettered",
		zap.String("reason", reason),
		zap.String("lastError", dead.Envelope.LastError),
		zap.Strings("attempts", e.history(ctx, logger, msg.ID)),
	)

	if publishErr != nil {
		return fmt.Errorf("failed to publish dead letter: %w", publishErr)
	}
	return nil
}

func (e *RetryEngine) recordAttempt(
	ctx context.Context,
	logger *zap.Logger,
	msg queue.Message,
	payload domain.Payload,
	sendErr error,
) {
	if e.attempts == nil {
		return
	}

	var attemptErr *string
	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value
	}

	attempt := &domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		MessageID:     msg.ID,
		Type:          payload.Type,
		Recipient:     payload.Recipient,
		AttemptNumber: msg.Envelope.RetryCount + 1,
		Error:         attemptErr,
		CreatedAt:     e.now().UTC(),
	}
	if err := e.attempts.Create(ctx, attempt); err != nil {
		logger.Warn("failed to record delivery attempt", zap.Error(err))
	}
}

func (e *RetryEngine) recordDeadLetter(
	ctx context.Context,
	logger *zap.Logger,
	msg queue.Message,
	notificationType domain.Type,
	reason string,
) {
	if e.deadLetters == nil {
		return
	}

	letter := &domain.DeadLetter{
		ID:         uuid.NewString(),
		MessageID:  msg.ID,
		Type:       notificationType,
		Payload:    msg.Body,
		RetryCount: msg.Envelope.RetryCount,
		LastError:  msg.Envelope.LastError,
		Reason:     reason,
		CreatedAt:  e.now().UTC(),
	}
	if err := e.deadLetters.Create(ctx, letter); err != nil {
		logger.Warn("failed to record dead letter", zap.Error(err))
	}
}

func (e *RetryEngine) history(ctx context.Context, logger *zap.Logger, messageID string) []string {
	if e.attempts == nil || messageID == "" {
		return nil
	}

	attempts, err := e.attempts.ListByMessageID(ctx, messageID)
	if err != nil {
		logger.Warn("failed to load attempt history", zap.Error(err))
		return nil
	}

	history := make([]string, 0, len(attempts))
	for _, a := range attempts {
		line := fmt.Sprintf("#%d delivered", a.AttemptNumber)
		if a.Error != nil {
			line = fmt.Sprintf("#%d %s", a.AttemptNumber, *a.Error)
		}
		history = append(history, line)
	}
	return history
}

// Drain waits for scheduled republishes when the scheduler supports it.
func (e *RetryEngine) Drain(ctx context.Context) error {
	waiter, ok := e.scheduler.(interface{ Wait(context.Context) error })
	if !ok {
		return nil
	}
	return waiter.Wait(ctx)
}
