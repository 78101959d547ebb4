package redis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-dispatch/internal/ratelimit"
	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultSendsPerSec int64 = 50
	keyPrefix                = "notify:send"
	waitStep                 = 20 * time.Millisecond
	waitMax                  = 100 * time.Millisecond
	windowTTLSeconds         = 2
)

// Fixed one-second window: the first hit in a window sets its expiry.
var windowScript = goredis.NewScript(`
local hits = redis.call("INCR", KEYS[1])
if hits == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if hits > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

var _ ratelimit.RateLimiter = (*SendLimiter)(nil)

// SendLimiter caps transport sends per notification type across every notifier process
// sharing the same Redis.
type SendLimiter struct {
	client      goredis.Scripter
	sendsPerSec int64
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
}

func NewSendLimiter(client goredis.Scripter, sendsPerSec int) (*SendLimiter, error) {
	return newSendLimiter(client, int64(sendsPerSec), time.Now, sleepWithContext)
}

func newSendLimiter(
	client goredis.Scripter,
	sendsPerSec int64,
	nowFn func() time.Time,
	sleepFn func(ctx context.Context, d time.Duration) error,
) (*SendLimiter, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if sendsPerSec <= 0 {
		sendsPerSec = defaultSendsPerSec
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	if sleepFn == nil {
		sleepFn = sleepWithContext
	}

	return &SendLimiter{
		client:      client,
		sendsPerSec: sendsPerSec,
		now:         nowFn,
		sleep:       sleepFn,
	}, nil
}

// Allow consumes one send from the current window for key.
func (l *SendLimiter) Allow(ctx context.Context, key string) (bool, error) {
	if l == nil || l.client == nil {
		return false, fmt.Errorf("send limiter is not initialized")
	}

	key = strings.ToLower(strings.TrimSpace(key))
	if key == "" {
		return false, fmt.Errorf("rate limit key is required")
	}

	window := fmt.Sprintf("%s:%s:%d", keyPrefix, key, l.now().UTC().Unix())
	allowed, err := windowScript.Run(ctx, l.client, []string{window}, l.sendsPerSec, windowTTLSeconds).Int()
	if err != nil {
		return false, fmt.Errorf("failed to evaluate send limit: %w", err)
	}

	return allowed == 1, nil
}

// Wait blocks until a send is allowed for key or ctx is done.
func (l *SendLimiter) Wait(ctx context.Context, key string) error {
	wait := waitStep
	for {
		allowed, err := l.Allow(ctx, key)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}

		wait += waitStep
		if wait > waitMax {
			wait = waitMax
		}
	}
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
