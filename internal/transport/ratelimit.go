package transport

import (
	"context"

	"golang.org/x/time/rate"
)

// TokenBucketLimiter adapts golang.org/x/time/rate to the RateLimiter
// interface. A zero or negative requests-per-second disables limiting.
type TokenBucketLimiter struct {
	limiter *rate.Limiter
}

// NewTokenBucketLimiter creates a rate limiter allowing rps requests per
// second with the given burst size. Burst values below 1 are raised to 1
// so a positive rps always admits traffic.
func NewTokenBucketLimiter(rps float64, burst int) *TokenBucketLimiter {
	if rps <= 0 {
		return &TokenBucketLimiter{}
	}
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketLimiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// Wait blocks until a request is allowed under the rate limit or the
// context is cancelled.
func (l *TokenBucketLimiter) Wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Allow reports whether a request may proceed immediately without blocking.
func (l *TokenBucketLimiter) Allow() bool {
	if l.limiter == nil {
		return true
	}
	return l.limiter.Allow()
}
