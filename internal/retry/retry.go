// Package retry wraps fallible operations with bounded exponential backoff.
package retry

import (
	"context"
	"math/rand"
	"time"
)

// Operation is any failable unit of work. The policy has no knowledge of
// what it wraps.
type Operation func() error

// Policy holds backoff parameters. Attempts are numbered 0..MaxRetries
// inclusive, so a policy performs at most MaxRetries+1 attempts; the last
// attempt's error is returned to the caller without sleeping.
type Policy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultPolicy mirrors the extraction defaults: 3 retries, 1s base, 60s cap.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 3,
		BaseDelay:  time.Second,
		MaxDelay:   60 * time.Second,
	}
}

// Do invokes op, retrying on failure with exponential backoff plus uniform
// jitter in [0, 0.1*delay). Cancelling ctx aborts the backoff sleep and
// returns the context error.
func (p Policy) Do(ctx context.Context, op Operation) error {
	var lastErr error

	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}

		if attempt == p.MaxRetries {
			break
		}

		delay := p.delayFor(attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return lastErr
}

func (p Policy) delayFor(attempt int) time.Duration {
	delay := p.BaseDelay << uint(attempt)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}

	jitter := time.Duration(rand.Float64() * 0.1 * float64(delay))
	return delay + jitter
}
