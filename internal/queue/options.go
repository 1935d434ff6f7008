package queue

import (
	"time"

	"github.com/episodecast/api/internal/model"
	"github.com/hibiken/asynq"
)

// Backoff controls the wait between queue-level retries. Delay is in milliseconds.
type Backoff struct {
	Type  model.BackoffType `json:"type"`
	Delay int64             `json:"delay"`
}

// Options are the per-submission queue settings.
type Options struct {
	// Priority 1 dequeues first. Zero means default.
	Priority         int
	Attempts         int
	Backoff          Backoff
	RemoveOnComplete bool
}

// DefaultOptions returns attempts=3 with exponential backoff from 5s.
func DefaultOptions() Options {
	return Options{
		Attempts: 3,
		Backoff:  Backoff{Type: model.BackoffExponential, Delay: 5000},
	}
}

// Priority tiers of one logical queue
const (
	TierCritical = "critical"
	TierDefault  = "default"
	TierLow      = "low"
)

// failedRetention is how long finished jobs stay inspectable when not removed on completion.
const failedRetention = 24 * time.Hour

// TierFor maps a priority onto one of the queue's tier names.
func TierFor(queueName string, priority int) string {
	switch {
	case priority == 1:
		return queueName + ":" + TierCritical
	case priority >= 3:
		return queueName + ":" + TierLow
	default:
		return queueName + ":" + TierDefault
	}
}

// Queues returns the tier weights for asynq.Config; used with StrictPriority.
func Queues(queueName string) map[string]int {
	return map[string]int{
		queueName + ":" + TierCritical: 6,
		queueName + ":" + TierDefault:  3,
		queueName + ":" + TierLow:      1,
	}
}

// TaskOptions translates submission options into asynq options. An empty
// jobID leaves id assignment to asynq, which periodic tasks need.
func TaskOptions(queueName, jobID string, opts Options, timeout time.Duration) []asynq.Option {
	maxRetry := opts.Attempts - 1
	if maxRetry < 0 {
		maxRetry = 0
	}

	taskOpts := []asynq.Option{
		asynq.Queue(TierFor(queueName, opts.Priority)),
		asynq.MaxRetry(maxRetry),
	}
	if jobID != "" {
		taskOpts = append(taskOpts, asynq.TaskID(jobID))
	}
	if !opts.RemoveOnComplete {
		taskOpts = append(taskOpts, asynq.Retention(failedRetention))
	}
	if timeout > 0 {
		taskOpts = append(taskOpts, asynq.Timeout(timeout))
	}
	return taskOpts
}

// RetryDelay is an asynq.RetryDelayFunc honoring the backoff stored in the
// envelope. n is the number of retries already made.
func RetryDelay(n int, err error, t *asynq.Task) time.Duration {
	env, decodeErr := DecodeEnvelope(t.Payload())
	if decodeErr != nil || env.Backoff.Delay <= 0 {
		return asynq.DefaultRetryDelayFunc(n, err, t)
	}
	return backoffDelay(env.Backoff, n)
}

func backoffDelay(b Backoff, n int) time.Duration {
	base := time.Duration(b.Delay) * time.Millisecond
	if b.Type != model.BackoffExponential {
		return base
	}
	if n > 20 {
		n = 20
	}
	return base * time.Duration(1<<uint(n))
}
