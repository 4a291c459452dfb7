package ratelimit

import (
	"context"
	"time"
)

// Result describes the outcome of a rate limit check.
type Result struct {
	Allowed   bool
	Remaining int
	Reset     time.Time
}

// RetryAfter returns how long the caller should wait before retrying.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || r.Reset.IsZero() {
		return 0
	}
	wait := r.Reset.Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}

// Limiter provides rate limit checks over a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error)
}
