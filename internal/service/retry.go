package service

import (
	"context"
	"math"
	"math/rand/v2"
	"time"
)

// RetryPolicy defines exponential backoff parameters for optimistic commits.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns delay for a given attempt (1-based) with clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = 10 * time.Millisecond
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = r.InitialDelay
	}
	return d
}

// Wait sleeps for the attempt's delay plus up to 50% jitter, or until ctx is done.
func (r RetryPolicy) Wait(ctx context.Context, attempt int) error {
	d := r.NextDelay(attempt)
	d += time.Duration(rand.Int64N(int64(d)/2 + 1))

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
