// Package ratelimiter provides token bucket limiters built on
// golang.org/x/time/rate.
//
// RateLimiter is a single bucket. The server uses it to pace connection
// admission and the load generator uses it to pace outgoing requests.
// Admission combines a global bucket with one bucket per client address.
package ratelimiter

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket.
//
// Tokens are added at a constant rate up to the burst capacity; each
// admitted event consumes one. A zero rate means unlimited.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a RateLimiter.
//
// Parameters:
//   - perSecond: Sustained rate in events per second, 0 for unlimited
//   - burst: Bucket capacity; values below 1 are raised to 1 so a limited
//     bucket can admit anything at all
//
// Example:
//
//	// 500 connections/s sustained, bursts of 1000
//	limiter := New(500, 1000)
func New(perSecond, burst uint) *RateLimiter {
	if perSecond == 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	if burst == 0 {
		burst = 1
	}
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst)),
	}
}

// Unlimited reports whether the limiter admits everything.
func (r *RateLimiter) Unlimited() bool {
	return r.limiter.Limit() == rate.Inf
}

// Allow consumes a token if one is available and reports whether it did.
// It never waits.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
//
// Returns the context error if ctx ends first, or an error if the wait would
// exceed ctx's deadline.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// Tokens returns the tokens currently in the bucket. Useful for monitoring
// only: the value may change immediately.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
