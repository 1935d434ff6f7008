package worker

import (
	"context"
	"log"

	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/queue"
)

// DuePromoter is satisfied by *service.ScheduleService.
type DuePromoter interface {
	PromoteDue(ctx context.Context, eventName string) ([]string, error)
}

// ScheduleWorker processes schedule-episodes jobs
type ScheduleWorker struct {
	schedules DuePromoter
	jobs      JobRecorder
}

// NewScheduleWorker creates a new schedule worker
func NewScheduleWorker(schedules DuePromoter, jobs JobRecorder) *ScheduleWorker {
	return &ScheduleWorker{schedules: schedules, jobs: jobs}
}

// Handle marks due episodes as ongoing
func (w *ScheduleWorker) Handle(ctx context.Context, job *queue.Job) error {
	payload, err := payloadAs[*model.ScheduleEpisodesPayload](job)
	if err != nil {
		return err
	}

	promoted, err := w.schedules.PromoteDue(ctx, payload.EventName)
	if err != nil {
		return err
	}
	if len(promoted) > 0 {
		log.Printf("Promoted %d due episodes", len(promoted))
	}

	w.jobs.SetResult(ctx, job.ID, map[string]interface{}{"promoted": promoted})
	return nil
}
