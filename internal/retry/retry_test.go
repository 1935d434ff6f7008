package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedSleeps struct {
	delays []time.Duration
}

func (r *recordedSleeps) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func TestDo_SucceedsAfterFailures(t *testing.T) {
	sleeps := &recordedSleeps{}
	calls := 0
	policy := Policy{MaxAttempts: 5, BaseDelay: 100 * time.Millisecond, Sleep: sleeps.sleep}

	got, err := Do(context.Background(), policy, func(context.Context) (string, error) {
		calls++
		if calls <= 2 {
			return "", errors.New("upstream unavailable")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeps.delays)
}

func TestDo_ReturnsLastErrorWhenExhausted(t *testing.T) {
	sleeps := &recordedSleeps{}
	calls := 0
	policy := Policy{MaxAttempts: 3, BaseDelay: time.Second, Backoff: Fixed, Sleep: sleeps.sleep}

	_, err := Do(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("attempt failed")
	})

	require.Error(t, err)
	assert.Equal(t, "attempt failed", err.Error())
	assert.Equal(t, 3, calls)
	assert.Equal(t, []time.Duration{time.Second, time.Second}, sleeps.delays)
}

func TestDo_PermanentStopsImmediately(t *testing.T) {
	sentinel := errors.New("bad json")
	calls := 0
	policy := Policy{MaxAttempts: 5, Sleep: (&recordedSleeps{}).sleep}

	_, err := Do(context.Background(), policy, func(context.Context) (int, error) {
		calls++
		return 0, Permanent(sentinel)
	})

	assert.ErrorIs(t, err, sentinel)
	var perm *permanentError
	assert.False(t, errors.As(err, &perm), "marker is stripped from the returned error")
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0

	_, err := Do(ctx, Policy{MaxAttempts: 3, BaseDelay: time.Hour}, func(context.Context) (int, error) {
		calls++
		return 0, errors.New("boom")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "retry interrupted after attempt 1")
	assert.Equal(t, 1, calls)
}

func TestDo_ZeroAttemptsRunsOnce(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(), Policy{}, func(context.Context) (int, error) {
		calls++
		return 1, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestOnRetryReportsAttempt(t *testing.T) {
	var seen []int
	policy := Policy{
		MaxAttempts: 3,
		Sleep:       (&recordedSleeps{}).sleep,
		OnRetry:     func(attempt int, _ error) { seen = append(seen, attempt) },
	}
	_, _ = Do(context.Background(), policy, func(context.Context) (int, error) {
		return 0, errors.New("nope")
	})
	assert.Equal(t, []int{1, 2}, seen)
}
