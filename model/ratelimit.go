package model

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimited wraps a Model so every Generate call first waits on a token
// bucket limiter. Waiting honours ctx cancellation.
type RateLimited struct {
	next    Model
	limiter *rate.Limiter
}

// NewRateLimited wraps m with limiter.
func NewRateLimited(m Model, limiter *rate.Limiter) *RateLimited {
	return &RateLimited{next: m, limiter: limiter}
}

// PerMinute builds a limiter allowing n requests per minute with a burst of one.
// n <= 0 yields an unlimited limiter.
func PerMinute(n int) *rate.Limiter {
	if n <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Limit(float64(n)/60.0), 1)
}

// Generate implements Model.
func (r *RateLimited) Generate(ctx context.Context, req Request) (*Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return r.next.Generate(ctx, req)
}

// Info implements Model.
func (r *RateLimited) Info() Info { return r.next.Info() }
