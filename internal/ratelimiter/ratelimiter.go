// Package ratelimiter throttles connection admission with a token bucket.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter wraps golang.org/x/time/rate for the accept loop.
//
// Each admitted connection consumes one token. Tokens refill at the
// configured rate up to the burst size. A limiter built with a zero rate
// never blocks.
//
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter allowing requestsPerSecond sustained admissions and
// bursts of up to burst. A zero rate means unlimited. A zero burst with a
// non-zero rate is raised to 1 so that Wait can ever succeed.
func New(requestsPerSecond, burst uint) *RateLimiter {
	if requestsPerSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = 1
	}

	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), int(burst)),
	}
}

// Unlimited reports whether the limiter admits everything immediately.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

// Allow consumes a token if one is available, without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// SetLimit changes the sustained rate. Zero removes the limit.
func (r *RateLimiter) SetLimit(requestsPerSecond uint) {
	if requestsPerSecond == 0 {
		r.limiter.SetLimit(rate.Inf)
		return
	}
	r.limiter.SetLimit(rate.Limit(requestsPerSecond))
	if r.limiter.Burst() == 0 {
		r.limiter.SetBurst(1)
	}
}

// Tokens returns the tokens currently available, for diagnostics.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
