// Package ratelimiter is a token bucket shared by the throttle layer.
package ratelimiter

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// unlimited stands for "no limit"; rate.Inf has edge cases with WaitN.
const unlimited = 1_000_000_000

// RateLimiter is a token bucket. Tokens are added at a constant rate up
// to the burst size; each unit of work consumes tokens.
//
// Thread safety:
// All methods are safe for concurrent use.
type RateLimiter struct {
	limiter *rate.Limiter
}

// New creates a limiter refilled at perSecond tokens per second, holding at
// most burst tokens.
//
// A zero perSecond disables limiting. A zero burst defaults to perSecond,
// so one second worth of tokens can be spent at once.
//
//	// 10 MiB/s, bursts of 1 MiB
//	limiter := New(10<<20, 1<<20)
func New(perSecond, burst uint) *RateLimiter {
	if perSecond == 0 {
		perSecond = unlimited
		burst = unlimited
	}
	if burst == 0 {
		burst = perSecond
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(perSecond), int(burst))}
}

// Allow consumes one token if available, without waiting.
func (r *RateLimiter) Allow() bool {
	return r.limiter.Allow()
}

// AllowN consumes n tokens if all are available, without waiting.
func (r *RateLimiter) AllowN(n uint) bool {
	return r.limiter.AllowN(time.Now(), int(n))
}

// Wait blocks until one token is available or ctx is done.
func (r *RateLimiter) Wait(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// WaitN blocks until n tokens were consumed or ctx is done.
//
// Unlike rate.Limiter.WaitN, n may exceed the burst: the tokens are then
// taken in burst-sized steps, so a large transfer is paced instead of
// rejected.
func (r *RateLimiter) WaitN(ctx context.Context, n uint) error {
	for n > 0 {
		step := min(n, uint(r.limiter.Burst()))
		if step == 0 {
			step = 1
		}
		if err := r.limiter.WaitN(ctx, int(step)); err != nil {
			return err
		}
		n -= step
	}
	return nil
}

// SetLimit changes the refill rate. A burst that was tied to the old rate
// follows the new one.
func (r *RateLimiter) SetLimit(perSecond uint) {
	if perSecond == 0 {
		perSecond = unlimited
	}
	oldRate := uint(r.limiter.Limit())
	if uint(r.limiter.Burst()) == oldRate {
		r.limiter.SetBurst(int(perSecond))
	}
	r.limiter.SetLimit(rate.Limit(perSecond))
}

// SetBurst changes the bucket size.
func (r *RateLimiter) SetBurst(burst uint) {
	r.limiter.SetBurst(int(burst))
}

// Burst returns the bucket size.
func (r *RateLimiter) Burst() uint {
	return uint(r.limiter.Burst())
}

// Tokens returns the tokens currently available. Monitoring only: the
// value is stale as soon as it is returned.
func (r *RateLimiter) Tokens() float64 {
	return r.limiter.Tokens()
}
