package worker

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/queue"
	"github.com/episodecast/api/internal/scheduler"
	"github.com/hibiken/asynq"
)

// SimulationGenerating is satisfied by *service.SimulationGenerator.
type SimulationGenerating interface {
	GenerateForEvent(ctx context.Context, jobID string, p *model.GenerateSimulationPayload) (*model.SimulationGeneratedResult, error)
}

// SimulationWorker processes generate-simulation jobs
type SimulationWorker struct {
	generator SimulationGenerating
	jobs      JobRecorder
	notifier  Notifier
}

// NewSimulationWorker creates a new simulation worker
func NewSimulationWorker(generator SimulationGenerating, jobs JobRecorder, notifier Notifier) *SimulationWorker {
	return &SimulationWorker{generator: generator, jobs: jobs, notifier: notifier}
}

// Handle generates and schedules every episode of the event
func (w *SimulationWorker) Handle(ctx context.Context, job *queue.Job) error {
	payload, err := payloadAs[*model.GenerateSimulationPayload](job)
	if err != nil {
		return err
	}

	log.Printf("Generating %d episodes of %s for user %s", len(payload.Episodes), payload.EventName, payload.UserID)
	w.jobs.SetStep(ctx, job.ID, fmt.Sprintf("generating %d episodes", len(payload.Episodes)))

	result, err := w.generator.GenerateForEvent(ctx, job.ID, payload)
	if err != nil {
		if errors.Is(err, scheduler.ErrUnsupportedScheduleType) {
			return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
		}
		return err
	}

	w.jobs.SetResult(ctx, job.ID, result)
	w.notifier.Notify(payload.UserID, model.WSNotification{
		Type:  model.WSMessageTypeSimulationGenerated,
		JobID: job.ID,
		Data:  result,
	})
	return nil
}
