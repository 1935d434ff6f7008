// Package retry wraps fallible operations with a bounded number of attempts
// and a delay between them.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Backoff computes the wait before the next attempt. attempt is the 1-based
// number of the attempt that just failed.
type Backoff func(base time.Duration, attempt int) time.Duration

// Linear waits base × attempt.
func Linear(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(attempt)
}

// Fixed always waits base.
func Fixed(base time.Duration, _ int) time.Duration {
	return base
}

// Policy describes a retry budget. The first call counts as attempt 1.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Backoff     Backoff
	Name        string

	// Sleep overrides how waits are performed (useful for tests).
	Sleep func(ctx context.Context, d time.Duration) error
	// OnRetry is called after a failed attempt that will be retried.
	OnRetry func(attempt int, err error)
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns the wrapped error
// immediately.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do invokes op until it succeeds, returns a permanent error, the context is
// done, or the attempt budget is spent. The last error is returned as is.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := p.Backoff
	if backoff == nil {
		backoff = Linear
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		var perm *permanentError
		if errors.As(err, &perm) {
			return zero, perm.err
		}
		if attempt == attempts {
			break
		}
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
		if err := sleep(ctx, backoff(p.BaseDelay, attempt)); err != nil {
			return zero, fmt.Errorf("%s: retry interrupted after attempt %d: %w", p.label(), attempt, lastErr)
		}
	}

	return zero, lastErr
}

func (p Policy) label() string {
	if p.Name == "" {
		return "retry"
	}
	return p.Name
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
