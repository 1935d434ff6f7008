package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/episodecast/api/internal/config"
	"github.com/episodecast/api/internal/model"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// PeriodicRegistrar is satisfied by *asynq.Scheduler.
type PeriodicRegistrar interface {
	Register(cronspec string, task *asynq.Task, opts ...asynq.Option) (string, error)
}

// Client submits jobs onto the named queue.
type Client struct {
	enqueuer  Enqueuer
	queueName string
	timeout   time.Duration
	now       func() time.Time
	newID     func() string
}

// NewClient creates a producer for the queue described by cfg
func NewClient(enqueuer Enqueuer, cfg *config.QueueConfig) *Client {
	return &Client{
		enqueuer:  enqueuer,
		queueName: cfg.Name,
		timeout:   cfg.JobTimeout,
		now:       time.Now,
		newID:     func() string { return uuid.New().String() },
	}
}

// Enqueue validates payload against kind and queues it. The returned id is
// shared by the job record and the asynq task.
func (c *Client) Enqueue(ctx context.Context, kind model.Kind, payload interface{}, opts Options) (string, error) {
	jobID := c.newID()
	task, err := c.newTask(jobID, kind, payload, opts)
	if err != nil {
		return "", err
	}

	if _, err := c.enqueuer.EnqueueContext(ctx, task, TaskOptions(c.queueName, jobID, opts, c.timeout)...); err != nil {
		return "", fmt.Errorf("failed to enqueue %s job: %w", kind, err)
	}
	return jobID, nil
}

// RegisterPeriodic schedules kind to be enqueued on cronspec.
func (c *Client) RegisterPeriodic(r PeriodicRegistrar, cronspec string, kind model.Kind, payload interface{}, opts Options) (string, error) {
	task, err := c.newTask("", kind, payload, opts)
	if err != nil {
		return "", err
	}
	entryID, err := r.Register(cronspec, task, TaskOptions(c.queueName, "", opts, c.timeout)...)
	if err != nil {
		return "", fmt.Errorf("failed to register periodic %s job: %w", kind, err)
	}
	return entryID, nil
}

func (c *Client) newTask(jobID string, kind model.Kind, payload interface{}, opts Options) (*asynq.Task, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	typed, err := DecodePayload(kind, raw)
	if err != nil {
		return nil, err
	}

	attempts := opts.Attempts
	if attempts < 1 {
		attempts = 1
	}

	env := Envelope{
		JobID:            jobID,
		Kind:             kind,
		UserID:           userOf(typed),
		Priority:         opts.Priority,
		MaxAttempts:      attempts,
		Backoff:          opts.Backoff,
		RemoveOnComplete: opts.RemoveOnComplete,
		EnqueuedAt:       c.now().UTC(),
		Payload:          raw,
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return asynq.NewTask(string(kind), data), nil
}
