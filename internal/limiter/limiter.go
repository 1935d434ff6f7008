// Package limiter throttles calls to rate-limited external services.
//
// A Limiter caps the number of tasks running at once, spaces consecutive task
// starts, and draws one token per start from a reservoir that is topped up on
// a fixed interval. Tasks start in submission order. Build one Limiter per
// external service at startup and share it; a limiter created per call does
// not throttle anything.
package limiter

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrReservoirDepleted is returned when the reservoir is empty and never refills.
var ErrReservoirDepleted = errors.New("limiter reservoir depleted")

// Options configures a Limiter. Zero values disable the matching constraint.
type Options struct {
	MaxConcurrent           int
	MinSpacing              time.Duration
	ReservoirSize           int
	ReservoirRefillAmount   int
	ReservoirRefillInterval time.Duration
}

// Limiter is safe for concurrent use.
type Limiter struct {
	opts Options

	// admit is a one-slot gate. Blocked senders are released in arrival
	// order, which keeps task starts FIFO.
	admit   chan struct{}
	slots   chan struct{}
	spacing *rate.Limiter

	mu         sync.Mutex
	tokens     int
	lastRefill time.Time
	now        func() time.Time
}

// New creates a limiter.
func New(opts Options) *Limiter {
	l := &Limiter{
		opts:  opts,
		admit: make(chan struct{}, 1),
		now:   time.Now,
	}
	if opts.MaxConcurrent > 0 {
		l.slots = make(chan struct{}, opts.MaxConcurrent)
	}
	if opts.MinSpacing > 0 {
		l.spacing = rate.NewLimiter(rate.Every(opts.MinSpacing), 1)
	}
	if opts.ReservoirSize > 0 {
		l.tokens = opts.ReservoirSize
		l.lastRefill = l.now()
	}
	return l
}

// Schedule waits until task may start under l's constraints, then runs it
// on the calling goroutine.
func Schedule[T any](ctx context.Context, l *Limiter, task func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if l == nil {
		return task(ctx)
	}
	if err := l.acquire(ctx); err != nil {
		return zero, err
	}
	defer l.release()
	return task(ctx)
}

func (l *Limiter) acquire(ctx context.Context) error {
	select {
	case l.admit <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-l.admit }()

	if l.slots != nil {
		select {
		case l.slots <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if err := l.waitStart(ctx); err != nil {
		l.release()
		return err
	}
	return nil
}

func (l *Limiter) waitStart(ctx context.Context) error {
	if l.spacing != nil {
		if err := l.spacing.Wait(ctx); err != nil {
			return err
		}
	}
	if l.opts.ReservoirSize <= 0 {
		return nil
	}

	for {
		wait, err := l.takeToken()
		if err != nil {
			return err
		}
		if wait == 0 {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// takeToken consumes a reservoir token, or reports how long until the next refill.
func (l *Limiter) takeToken() (time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.refillLocked()
	if l.tokens > 0 {
		l.tokens--
		return 0, nil
	}
	if l.opts.ReservoirRefillInterval <= 0 || l.opts.ReservoirRefillAmount <= 0 {
		return 0, ErrReservoirDepleted
	}
	wait := l.lastRefill.Add(l.opts.ReservoirRefillInterval).Sub(l.now())
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, nil
}

func (l *Limiter) refillLocked() {
	interval := l.opts.ReservoirRefillInterval
	if interval <= 0 || l.opts.ReservoirRefillAmount <= 0 {
		return
	}
	elapsed := l.now().Sub(l.lastRefill)
	if elapsed < interval {
		return
	}
	periods := int(elapsed / interval)
	l.tokens += periods * l.opts.ReservoirRefillAmount
	if l.tokens > l.opts.ReservoirSize {
		l.tokens = l.opts.ReservoirSize
	}
	l.lastRefill = l.lastRefill.Add(time.Duration(periods) * interval)
}

func (l *Limiter) release() {
	if l.slots != nil {
		<-l.slots
	}
}
