package ratelimit

import "context"

// RateLimiter throttles transport sends per notification type.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}

// Unlimited never throttles.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, string) (bool, error) { return true, nil }
func (Unlimited) Wait(context.Context, string) error          { return nil }
