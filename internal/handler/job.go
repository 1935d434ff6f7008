package handler

import (
	"context"
	"errors"

	"github.com/episodecast/api/internal/middleware"
	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/service"
	"github.com/episodecast/api/pkg/response"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// JobSubmitter is satisfied by *service.JobService.
type JobSubmitter interface {
	SubmitSimulation(ctx context.Context, payload *model.GenerateSimulationPayload) (*model.JobQueuedResponse, error)
	SubmitPodcast(ctx context.Context, userID string, simulationIDs []string) (*model.JobsQueuedResponse, error)
	SubmitSchedule(ctx context.Context, userID string, payload *model.ScheduleEpisodesPayload) (*model.JobQueuedResponse, error)
	GetJob(ctx context.Context, jobID string) (*model.Job, error)
}

type JobHandler struct {
	jobs      JobSubmitter
	validator *validator.Validate
}

func NewJobHandler(jobs JobSubmitter, v *validator.Validate) *JobHandler {
	return &JobHandler{
		jobs:      jobs,
		validator: v,
	}
}

// GenerateSimulation handles POST /api/simulations/generate
func (h *JobHandler) GenerateSimulation(c *fiber.Ctx) error {
	var req model.GenerateSimulationPayload
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}
	// The authenticated user always owns the job
	req.UserID = middleware.GetUserID(c)

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.jobs.SubmitSimulation(c.UserContext(), &req)
	if err != nil {
		return response.QueueUnavailable(c, err.Error())
	}

	return response.Accepted(c, result)
}

// GeneratePodcast handles POST /api/podcasts/generate
func (h *JobHandler) GeneratePodcast(c *fiber.Ctx) error {
	var req model.GeneratePodcastRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.jobs.SubmitPodcast(c.UserContext(), middleware.GetUserID(c), req.SimulationIDs)
	if err != nil {
		return response.QueueUnavailable(c, err.Error())
	}

	return response.Accepted(c, result)
}

// ScheduleEpisodes handles POST /api/episodes/schedule
//
// Deprecated: due episodes are promoted by the periodic schedule job.
func (h *JobHandler) ScheduleEpisodes(c *fiber.Ctx) error {
	var req model.ScheduleEpisodesPayload
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return response.ValidationError(c, "Invalid request body", nil)
		}
	}

	result, err := h.jobs.SubmitSchedule(c.UserContext(), middleware.GetUserID(c), &req)
	if err != nil {
		return response.QueueUnavailable(c, err.Error())
	}

	c.Set("Deprecation", "true")
	return response.Accepted(c, result)
}

// Status handles GET /api/jobs/:jobId
func (h *JobHandler) Status(c *fiber.Ctx) error {
	jobID := c.Params("jobId")
	if jobID == "" {
		return response.ValidationError(c, "Job ID is required", nil)
	}

	job, err := h.jobs.GetJob(c.UserContext(), jobID)
	if err != nil {
		if errors.Is(err, service.ErrJobNotFound) {
			return response.NotFound(c, "Job not found")
		}
		return response.ServiceError(c, err.Error())
	}

	// Jobs are only visible to the user that submitted them
	if job.UserID != "" && job.UserID != middleware.GetUserID(c) {
		return response.NotFound(c, "Job not found")
	}

	return response.OK(c, job)
}
