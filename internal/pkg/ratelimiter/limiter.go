// Package ratelimiter throttles API callers per outlet, with an in-memory
// window for single instances and a Redis-backed one for shared deployments.
package ratelimiter

import (
	"context"
	"time"
)

// Result describes one admission decision. RetryAfter is only meaningful
// when the request was denied.
type Result struct {
	Allowed    bool
	Remaining  int
	Reset      time.Time
	RetryAfter time.Duration
}

// Limiter admits or rejects one request against a keyed counting window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (*Result, error)
}
