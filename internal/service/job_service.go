package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/queue"
	"github.com/redis/go-redis/v9"
)

var ErrJobNotFound = errors.New("job not found")

const jobRecordTTL = 24 * time.Hour

// Submitter is satisfied by *queue.Client.
type Submitter interface {
	Enqueue(ctx context.Context, kind model.Kind, payload interface{}, opts queue.Options) (string, error)
}

// JobService submits jobs and keeps their status records in Redis under job:<id>.
// It is also the processor's observer, so records follow the job lifecycle.
type JobService struct {
	redis     redis.Cmdable
	queue     Submitter
	notifier  Notifier
	batchSize int
	now       func() time.Time
}

func NewJobService(redisClient redis.Cmdable, submitter Submitter, notifier Notifier, podcastBatchSize int) *JobService {
	if podcastBatchSize <= 0 {
		podcastBatchSize = 5
	}
	return &JobService{
		redis:     redisClient,
		queue:     submitter,
		notifier:  notifier,
		batchSize: podcastBatchSize,
		now:       time.Now,
	}
}

// SubmitSimulation queues content generation for one event
func (s *JobService) SubmitSimulation(ctx context.Context, payload *model.GenerateSimulationPayload) (*model.JobQueuedResponse, error) {
	jobID, err := s.submit(ctx, model.KindGenerateSimulation, payload.UserID, payload, queue.DefaultOptions())
	if err != nil {
		return nil, err
	}
	return &model.JobQueuedResponse{JobID: jobID, Status: model.JobStatusQueued, CreatedAt: s.now()}, nil
}

// SubmitPodcast queues podcast rendering, split into jobs of at most batchSize simulations
func (s *JobService) SubmitPodcast(ctx context.Context, userID string, simulationIDs []string) (*model.JobsQueuedResponse, error) {
	opts := queue.DefaultOptions()
	opts.Priority = 1
	opts.RemoveOnComplete = true

	var jobIDs []string
	for start := 0; start < len(simulationIDs); start += s.batchSize {
		end := start + s.batchSize
		if end > len(simulationIDs) {
			end = len(simulationIDs)
		}
		payload := &model.GeneratePodcastPayload{UserID: userID, SimulationIDs: simulationIDs[start:end]}
		jobID, err := s.submit(ctx, model.KindGeneratePodcast, userID, payload, opts)
		if err != nil {
			return nil, err
		}
		jobIDs = append(jobIDs, jobID)
	}
	return &model.JobsQueuedResponse{JobIDs: jobIDs, Status: model.JobStatusQueued, CreatedAt: s.now()}, nil
}

// SubmitSchedule queues a due-episode promotion pass
func (s *JobService) SubmitSchedule(ctx context.Context, userID string, payload *model.ScheduleEpisodesPayload) (*model.JobQueuedResponse, error) {
	opts := queue.DefaultOptions()
	opts.Priority = 1
	opts.RemoveOnComplete = true

	jobID, err := s.submit(ctx, model.KindScheduleEpisodes, userID, payload, opts)
	if err != nil {
		return nil, err
	}
	return &model.JobQueuedResponse{JobID: jobID, Status: model.JobStatusQueued, CreatedAt: s.now()}, nil
}

func (s *JobService) submit(ctx context.Context, kind model.Kind, userID string, payload interface{}, opts queue.Options) (string, error) {
	jobID, err := s.queue.Enqueue(ctx, kind, payload, opts)
	if err != nil {
		return "", err
	}

	job := &model.Job{
		ID:          jobID,
		Kind:        kind,
		Status:      model.JobStatusQueued,
		UserID:      userID,
		MaxAttempts: opts.Attempts,
		CreatedAt:   s.now(),
	}
	// The worker may already have picked the job up; never overwrite its record.
	if err := s.createJob(ctx, job); err != nil {
		log.Printf("Failed to save job record %s: %v", jobID, err)
	}
	return jobID, nil
}

// GetJob returns the status record of a job
func (s *JobService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return s.getJob(ctx, jobID)
}

// SetResult attaches a result to a job before it finishes
func (s *JobService) SetResult(ctx context.Context, jobID string, result interface{}) {
	data, err := json.Marshal(result)
	if err != nil {
		log.Printf("Failed to marshal job result: %v", err)
		return
	}
	s.update(ctx, jobID, func(job *model.Job) {
		job.Result = data
	})
}

// SetStep records what a running job is doing
func (s *JobService) SetStep(ctx context.Context, jobID, step string) {
	s.update(ctx, jobID, func(job *model.Job) {
		job.CurrentStep = step
	})
}

// JobStarted implements queue.Observer.
func (s *JobService) JobStarted(ctx context.Context, j *queue.Job) {
	now := s.now()
	s.upsert(ctx, j, func(job *model.Job) {
		job.Status = model.JobStatusRunning
		job.Attempt = j.Attempt
		job.MaxAttempts = j.MaxAttempts
		job.Error = nil
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
	})
}

// JobFinished implements queue.Observer.
func (s *JobService) JobFinished(ctx context.Context, j *queue.Job, err error) {
	now := s.now()
	if err == nil {
		s.upsert(ctx, j, func(job *model.Job) {
			job.Status = model.JobStatusSucceeded
			job.CurrentStep = ""
			job.CompletedAt = &now
		})
		return
	}

	msg := err.Error()
	if !j.Final(err) {
		s.upsert(ctx, j, func(job *model.Job) {
			job.Status = model.JobStatusRetrying
			job.Error = &msg
		})
		return
	}

	s.upsert(ctx, j, func(job *model.Job) {
		job.Status = model.JobStatusFailed
		job.Error = &msg
		job.CompletedAt = &now
	})
	if s.notifier != nil && j.UserID != "" {
		s.notifier.Notify(j.UserID, model.WSErrorMessage{
			Type:  model.WSMessageTypeJobFailed,
			JobID: j.ID,
			Error: model.WSError{Code: failureCode(j.Kind), Message: msg},
		})
	}
}

func failureCode(kind model.Kind) string {
	switch kind {
	case model.KindGenerateSimulation:
		return "SIMULATION_FAILED"
	case model.KindGeneratePodcast:
		return "PODCAST_FAILED"
	default:
		return "SCHEDULE_FAILED"
	}
}

// Helper methods

func jobKey(jobID string) string {
	return fmt.Sprintf("job:%s", jobID)
}

func (s *JobService) createJob(ctx context.Context, job *model.Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return s.redis.SetNX(ctx, jobKey(job.ID), data, jobRecordTTL).Err()
}

func (s *JobService) saveJob(ctx context.Context, job *model.Job) {
	data, err := json.Marshal(job)
	if err != nil {
		log.Printf("Failed to marshal job: %v", err)
		return
	}
	if err := s.redis.Set(ctx, jobKey(job.ID), data, jobRecordTTL).Err(); err != nil {
		log.Printf("Failed to save job %s: %v", job.ID, err)
	}
}

func (s *JobService) getJob(ctx context.Context, jobID string) (*model.Job, error) {
	data, err := s.redis.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrJobNotFound
		}
		return nil, err
	}

	var job model.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *JobService) update(ctx context.Context, jobID string, mutate func(job *model.Job)) {
	job, err := s.getJob(ctx, jobID)
	if err != nil {
		log.Printf("Failed to get job %s: %v", jobID, err)
		return
	}
	mutate(job)
	s.saveJob(ctx, job)
}

// upsert updates the record of j, creating it for jobs submitted elsewhere
// (periodic jobs, or a record that expired).
func (s *JobService) upsert(ctx context.Context, j *queue.Job, mutate func(job *model.Job)) {
	if j.ID == "" {
		return
	}
	job, err := s.getJob(ctx, j.ID)
	if err != nil {
		if !errors.Is(err, ErrJobNotFound) {
			log.Printf("Failed to get job %s: %v", j.ID, err)
			return
		}
		job = &model.Job{ID: j.ID, Kind: j.Kind, UserID: j.UserID, CreatedAt: j.EnqueuedAt}
	}
	mutate(job)
	s.saveJob(ctx, job)
}
