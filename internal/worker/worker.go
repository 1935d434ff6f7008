// Package worker holds the queue handlers, one per job kind.
package worker

import (
	"context"
	"fmt"

	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/queue"
	"github.com/hibiken/asynq"
)

// JobRecorder annotates the status record of a running job
type JobRecorder interface {
	SetResult(ctx context.Context, jobID string, result interface{})
	SetStep(ctx context.Context, jobID, step string)
}

// Notifier pushes a message to every connection of a user
type Notifier interface {
	Notify(userID string, msg interface{})
}

// Register binds every worker to its job kind.
func Register(p *queue.Processor, sims *SimulationWorker, podcasts *PodcastWorker, schedules *ScheduleWorker) {
	p.Register(model.KindGenerateSimulation, sims.Handle)
	p.Register(model.KindGeneratePodcast, podcasts.Handle)
	p.Register(model.KindScheduleEpisodes, schedules.Handle)
}

// payloadAs asserts the decoded payload type. A mismatch is a programming
// error and retrying cannot fix it.
func payloadAs[T any](job *queue.Job) (T, error) {
	p, ok := job.Payload.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("unexpected payload %T for %s job: %w", job.Payload, job.Kind, asynq.SkipRetry)
	}
	return p, nil
}
