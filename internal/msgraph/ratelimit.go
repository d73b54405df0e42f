package msgraph

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Graph allows roughly 10,000 requests per 10 minutes per app per mailbox.
// These limits stay well under that so the assistant never becomes the
// reason a user's other integrations get throttled.
const (
	defaultRequestsPerSecond = 10.0
	defaultBurst             = 15

	// defaultBackoff applies when a 429 arrives without a Retry-After header.
	defaultBackoff = 60 * time.Second
)

// RateLimiter paces requests to Microsoft Graph with a token bucket and
// honours Retry-After backoff from throttled responses.
type RateLimiter struct {
	mu      sync.Mutex
	limiter *rate.Limiter
	retryAt time.Time
}

// NewRateLimiter creates a rate limiter with the default Graph pacing.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst),
	}
}

// Wait blocks until the next request may be sent. It first sits out any
// backoff recorded from a throttled response, then takes a bucket token.
func (r *RateLimiter) Wait(ctx context.Context) error {
	r.mu.Lock()
	retryAt := r.retryAt
	r.mu.Unlock()

	if until := time.Until(retryAt); until > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(until):
		}
	}

	return r.limiter.Wait(ctx)
}

// RecordThrottle records a 429 response. retryAfter comes from the
// Retry-After header; zero or negative falls back to the default backoff.
func (r *RateLimiter) RecordThrottle(retryAfter time.Duration) {
	if retryAfter <= 0 {
		retryAfter = defaultBackoff
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.retryAt = time.Now().Add(retryAfter)
}
