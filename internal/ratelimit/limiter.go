package ratelimit

import "context"

// RateLimiter paces outbound push sends per limiter key.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	Wait(ctx context.Context, key string) error
}
