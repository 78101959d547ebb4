package service

import (
	"context"
	"sync"
	"time"

	"github.com/kursadbilgin/notification-dispatch/internal/domain"
	"github.com/kursadbilgin/notification-dispatch/internal/queue"
)

type fakePublisher struct {
	mu          sync.Mutex
	published   []queue.Message
	deadLetters []queue.Message
	pending     []queue.Message

	publishFn    func(ctx context.Context, msg queue.Message) error
	deadLetterFn func(ctx context.Context, msg queue.Message) error
}

func (f *fakePublisher) Publish(ctx context.Context, msg queue.Message) error {
	if f.publishFn != nil {
		if err := f.publishFn(ctx, msg); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, msg)
	f.pending = append(f.pending, msg)
	return nil
}

func (f *fakePublisher) PublishDeadLetter(ctx context.Context, msg queue.Message) error {
	if f.deadLetterFn != nil {
		if err := f.deadLetterFn(ctx, msg); err != nil {
			return err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.deadLetters = append(f.deadLetters, msg)
	return nil
}

// take returns the messages published to the work queue since the last call.
func (f *fakePublisher) take() []queue.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out
}

func (f *fakePublisher) snapshot() ([]queue.Message, []queue.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]queue.Message(nil), f.published...), append([]queue.Message(nil), f.deadLetters...)
}

// manualScheduler records delays and runs callbacks only when asked.
type manualScheduler struct {
	mu      sync.Mutex
	delays  []time.Duration
	pending []func()
}

func (s *manualScheduler) AfterFunc(d time.Duration, f func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	s.pending = append(s.pending, f)
}

func (s *manualScheduler) fire() int {
	s.mu.Lock()
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, f := range pending {
		f()
	}
	return len(pending)
}

func (s *manualScheduler) scheduled() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

type fakeDispatcher struct {
	mu         sync.Mutex
	calls      int
	dispatchFn func(ctx context.Context, p domain.Payload, call int) error
}

func (f *fakeDispatcher) Dispatch(ctx context.Context, p domain.Payload) error {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.mu.Unlock()

	if f.dispatchFn == nil {
		return nil
	}
	return f.dispatchFn(ctx, p, call)
}

func (f *fakeDispatcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type memoryAttemptRepo struct {
	mu        sync.Mutex
	attempts  []domain.DeliveryAttempt
	createErr error
}

func (r *memoryAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.attempts = append(r.attempts, *a)
	return nil
}

func (r *memoryAttemptRepo) ListByMessageID(ctx context.Context, messageID string) ([]domain.DeliveryAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.DeliveryAttempt
	for _, a := range r.attempts {
		if a.MessageID == messageID {
			out = append(out, a)
		}
	}
	return out, nil
}

type memoryDeadLetterRepo struct {
	mu      sync.Mutex
	letters []domain.DeadLetter
}

func (r *memoryDeadLetterRepo) Create(ctx context.Context, d *domain.DeadLetter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.letters = append(r.letters, *d)
	return nil
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, key string) error
}

func (f *fakeRateLimiter) Allow(ctx context.Context, key string) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, key string) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, key)
	}
	return nil
}

type fakeBroker struct {
	mu        sync.Mutex
	connects  int
	closes    int
	connected bool
	connectFn func(ctx context.Context) error
}

func (f *fakeBroker) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	if f.connectFn != nil {
		if err := f.connectFn(ctx); err != nil {
			return err
		}
	}
	f.connected = true
	return nil
}

func (f *fakeBroker) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeBroker) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	f.connected = false
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, handler)
	}
	<-ctx.Done()
	return nil
}

type fakeMailer struct {
	verifyFn func(ctx context.Context) error
	sendFn   func(ctx context.Context, to string, content domain.EmailContent) error
}

func (f *fakeMailer) Verify(ctx context.Context) error {
	if f.verifyFn != nil {
		return f.verifyFn(ctx)
	}
	return nil
}

func (f *fakeMailer) Send(ctx context.Context, to string, content domain.EmailContent) error {
	if f.sendFn != nil {
		return f.sendFn(ctx, to, content)
	}
	return nil
}

type fakeTransport struct {
	sendFn func(ctx context.Context, recipient string, content string) error
}

func (f *fakeTransport) Send(ctx context.Context, recipient string, content string) error {
	if f.sendFn != nil {
		return f.sendFn(ctx, recipient, content)
	}
	return nil
}
