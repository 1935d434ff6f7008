package worker

import (
	"context"
	"fmt"
	"log"

	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/queue"
)

// PodcastAssembling is satisfied by *service.PodcastAssembler.
type PodcastAssembling interface {
	Assemble(ctx context.Context, jobID, userID string, simulationIDs []string) ([]model.PodcastResult, error)
}

// PodcastWorker processes generate-podcast jobs
type PodcastWorker struct {
	assembler PodcastAssembling
	jobs      JobRecorder
}

// NewPodcastWorker creates a new podcast worker
func NewPodcastWorker(assembler PodcastAssembling, jobs JobRecorder) *PodcastWorker {
	return &PodcastWorker{assembler: assembler, jobs: jobs}
}

// Handle renders every simulation of the batch. Per-simulation failures,
// missing simulations included, are reported in the result and do not fail
// the job. Only a failed batch load is retried by the queue.
func (w *PodcastWorker) Handle(ctx context.Context, job *queue.Job) error {
	payload, err := payloadAs[*model.GeneratePodcastPayload](job)
	if err != nil {
		return err
	}

	w.jobs.SetStep(ctx, job.ID, fmt.Sprintf("rendering %d podcasts", len(payload.SimulationIDs)))

	results, err := w.assembler.Assemble(ctx, job.ID, payload.UserID, payload.SimulationIDs)
	if err != nil {
		return err
	}

	failed := 0
	for _, r := range results {
		if r.Status == model.PodStatusFailed {
			failed++
		}
	}
	if failed > 0 {
		log.Printf("Podcast job %s: %d of %d simulations failed", job.ID, failed, len(results))
	}

	w.jobs.SetResult(ctx, job.ID, results)
	return nil
}
