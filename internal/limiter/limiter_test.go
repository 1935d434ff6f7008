package limiter

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(ctx context.Context, l *Limiter, task func(ctx context.Context) error) error {
	_, err := Schedule(ctx, l, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, task(ctx)
	})
	return err
}

func running(l *Limiter) int {
	if l.slots == nil {
		return 0
	}
	return len(l.slots)
}

func TestLimiter_CapsConcurrency(t *testing.T) {
	l := New(Options{MaxConcurrent: 2})

	var active, peak int32
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := run(context.Background(), l, func(context.Context) error {
				n := atomic.AddInt32(&active, 1)
				for {
					p := atomic.LoadInt32(&peak)
					if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&active, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.Equal(t, 0, running(l))
}

func TestLimiter_StartsInSubmissionOrder(t *testing.T) {
	l := New(Options{MaxConcurrent: 1})

	block := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = run(context.Background(), l, func(context.Context) error {
			close(holding)
			<-block
			return nil
		})
	}()
	<-holding

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = run(context.Background(), l, func(context.Context) error {
				mu.Lock()
				order = append(order, i)
				mu.Unlock()
				return nil
			})
		}(i)
		// Let each submitter reach the gate before the next one.
		time.Sleep(15 * time.Millisecond)
	}
	close(block)
	wg.Wait()

	assert.Equal(t, []int{0, 1, 2, 3}, order)
}

func TestLimiter_SpacesStarts(t *testing.T) {
	l := New(Options{MinSpacing: 30 * time.Millisecond})

	var starts []time.Time
	for i := 0; i < 3; i++ {
		require.NoError(t, run(context.Background(), l, func(context.Context) error {
			starts = append(starts, time.Now())
			return nil
		}))
	}

	for i := 1; i < len(starts); i++ {
		assert.GreaterOrEqual(t, starts[i].Sub(starts[i-1]), 25*time.Millisecond)
	}
}

func TestLimiter_ReservoirRefills(t *testing.T) {
	l := New(Options{ReservoirSize: 2, ReservoirRefillAmount: 2, ReservoirRefillInterval: 60 * time.Millisecond})

	begin := time.Now()
	var starts []time.Duration
	for i := 0; i < 3; i++ {
		require.NoError(t, run(context.Background(), l, func(context.Context) error {
			starts = append(starts, time.Since(begin))
			return nil
		}))
	}

	assert.Less(t, starts[1], 30*time.Millisecond)
	assert.GreaterOrEqual(t, starts[2], 50*time.Millisecond)
}

func TestLimiter_ReservoirWithoutRefillDepletes(t *testing.T) {
	l := New(Options{ReservoirSize: 1})

	require.NoError(t, run(context.Background(), l, func(context.Context) error { return nil }))
	err := run(context.Background(), l, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrReservoirDepleted)
	assert.Equal(t, 0, running(l))
}

func TestLimiter_ContextCancelledWhileWaiting(t *testing.T) {
	l := New(Options{MaxConcurrent: 1})

	block := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = run(context.Background(), l, func(context.Context) error {
			close(holding)
			<-block
			return nil
		})
	}()
	<-holding
	defer close(block)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := run(ctx, l, func(context.Context) error {
		ran = true
		return nil
	})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, ran)
}

func TestSchedule_ReturnsTaskValue(t *testing.T) {
	l := New(Options{MaxConcurrent: 3})
	got, err := Schedule(context.Background(), l, func(context.Context) ([]byte, error) {
		return []byte("audio"), nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("audio"), got)
}
