package queue

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/episodecast/api/internal/model"
	"github.com/hibiken/asynq"
)

// Job is a dequeued unit of work with its payload already decoded and validated.
type Job struct {
	ID          string
	Kind        model.Kind
	UserID      string
	Attempt     int
	MaxAttempts int
	EnqueuedAt  time.Time
	Payload     interface{}
}

// Final reports whether err ends the job, either because it was marked
// non-retriable or because the attempt budget is spent.
func (j *Job) Final(err error) bool {
	if err == nil {
		return true
	}
	return errors.Is(err, asynq.SkipRetry) || j.Attempt >= j.MaxAttempts
}

// HandlerFunc processes one job kind.
type HandlerFunc func(ctx context.Context, job *Job) error

// Observer is told about every job the processor runs.
type Observer interface {
	JobStarted(ctx context.Context, job *Job)
	JobFinished(ctx context.Context, job *Job, err error)
}

// Processor dispatches dequeued tasks to the handler registered for their kind.
type Processor struct {
	handlers map[model.Kind]HandlerFunc
	observer Observer
}

// NewProcessor creates an empty dispatch table. observer may be nil.
func NewProcessor(observer Observer) *Processor {
	return &Processor{
		handlers: make(map[model.Kind]HandlerFunc),
		observer: observer,
	}
}

// Register binds handler to kind. Registering a kind twice panics.
func (p *Processor) Register(kind model.Kind, handler HandlerFunc) {
	if _, ok := payloadFactories[kind]; !ok {
		panic(fmt.Sprintf("queue: no payload type for kind %q", kind))
	}
	if _, dup := p.handlers[kind]; dup {
		panic(fmt.Sprintf("queue: handler for %q registered twice", kind))
	}
	p.handlers[kind] = handler
}

// Kinds lists the registered kinds.
func (p *Processor) Kinds() []model.Kind {
	kinds := make([]model.Kind, 0, len(p.handlers))
	for kind := range p.handlers {
		kinds = append(kinds, kind)
	}
	return kinds
}

// Mux mounts the processor on an asynq.ServeMux, one route per registered kind.
func (p *Processor) Mux(middleware ...asynq.MiddlewareFunc) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Use(middleware...)
	for kind := range p.handlers {
		mux.Handle(string(kind), p)
	}
	return mux
}

// ProcessTask implements asynq.Handler.
func (p *Processor) ProcessTask(ctx context.Context, t *asynq.Task) error {
	kind := model.Kind(t.Type())
	handler, ok := p.handlers[kind]
	if !ok {
		return fmt.Errorf("%w %q: %w", ErrUnknownKind, t.Type(), asynq.SkipRetry)
	}

	env, err := DecodeEnvelope(t.Payload())
	if err != nil {
		log.Printf("Dropping %s task with unreadable envelope: %v", kind, err)
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}

	job := &Job{
		ID:          env.JobID,
		Kind:        kind,
		UserID:      env.UserID,
		Attempt:     1,
		MaxAttempts: env.MaxAttempts,
		EnqueuedAt:  env.EnqueuedAt,
	}
	if job.ID == "" {
		job.ID, _ = asynq.GetTaskID(ctx)
	}
	if retried, ok := asynq.GetRetryCount(ctx); ok {
		job.Attempt = retried + 1
	}
	if job.MaxAttempts < 1 {
		job.MaxAttempts = 1
		if maxRetry, ok := asynq.GetMaxRetry(ctx); ok {
			job.MaxAttempts = maxRetry + 1
		}
	}

	if p.observer != nil {
		p.observer.JobStarted(ctx, job)
	}

	err = p.run(ctx, job, handler, env.Payload)

	if p.observer != nil {
		p.observer.JobFinished(ctx, job, err)
	}
	return err
}

func (p *Processor) run(ctx context.Context, job *Job, handler HandlerFunc, raw []byte) error {
	payload, err := DecodePayload(job.Kind, raw)
	if err != nil {
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	job.Payload = payload

	log.Printf("Starting %s job %s (attempt %d/%d)", job.Kind, job.ID, job.Attempt, job.MaxAttempts)
	if err := handler(ctx, job); err != nil {
		log.Printf("%s job %s failed: %v", job.Kind, job.ID, err)
		return err
	}
	log.Printf("%s job %s completed", job.Kind, job.ID)
	return nil
}
