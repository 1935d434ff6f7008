package model

import (
	"encoding/json"
	"time"
)

// Kind tags a queued job and selects its handler.
type Kind string

// Job kinds
const (
	KindScheduleEpisodes   Kind = "schedule-episodes" // deprecated, kept for compatibility
	KindGenerateSimulation Kind = "generate-simulation"
	KindGeneratePodcast    Kind = "generate-podcast"
)

// Job is the status record kept for a submitted job
type Job struct {
	ID          string          `json:"id"`
	Kind        Kind            `json:"kind"`
	Status      JobStatus       `json:"status"`
	UserID      string          `json:"userId,omitempty"`
	Attempt     int             `json:"attempt"`
	MaxAttempts int             `json:"maxAttempts"`
	CurrentStep string          `json:"currentStep,omitempty"`
	Error       *string         `json:"error,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	StartedAt   *time.Time      `json:"startedAt,omitempty"`
	CompletedAt *time.Time      `json:"completedAt,omitempty"`
}

// EpisodeContent describes one episode to generate
type EpisodeContent struct {
	Position    int      `json:"episode" validate:"min=0"`
	Title       string   `json:"title" validate:"required"`
	Topics      []string `json:"topic" validate:"required,min=1,dive,required"`
	Description string   `json:"description,omitempty"`
}

// GenerateSimulationPayload is the payload of a generate-simulation job
type GenerateSimulationPayload struct {
	UserID             string           `json:"userId" validate:"required"`
	ThreadID           string           `json:"threadId,omitempty"`
	Category           string           `json:"category" validate:"required"`
	ChannelName        string           `json:"channelName" validate:"required"`
	ChannelDescription string           `json:"channelDescription,omitempty"`
	EventName          string           `json:"eventName" validate:"required"`
	EventDescription   string           `json:"eventDescription,omitempty"`
	EventTemplate      string           `json:"eventTemplate,omitempty"`
	Duration           string           `json:"duration,omitempty"`
	UserPrompt         string           `json:"userPrompt,omitempty"`
	ActorCount         int              `json:"actorCount" validate:"min=0"`
	PanelistCount      int              `json:"noOfPanelist" validate:"min=0"`
	Characters         []Character      `json:"characterDetails" validate:"required,min=1,dive"`
	Episodes           []EpisodeContent `json:"episodeContent" validate:"required,min=1,dive"`
	IsQuiz             bool             `json:"isQuiz"`
	IsPoll             bool             `json:"isPoll"`
	QuizType           QuizType         `json:"quizType" validate:"omitempty,oneof=MULTICHOICE OPEN_ENDED"`
	NoOfQuestions      int              `json:"noOfQuestions" validate:"min=0,max=50"`
	StartDate          time.Time        `json:"scheduled" validate:"required"`
	ScheduleType       ScheduleType     `json:"scheduledType" validate:"required,oneof=DAILY WEEKLY MONTHLY YEARLY NEVER"`
}

// GeneratePodcastPayload is the payload of a generate-podcast job
type GeneratePodcastPayload struct {
	UserID        string   `json:"userId" validate:"required"`
	SimulationIDs []string `json:"simulationIds" validate:"required,min=1,dive,required"`
}

// ScheduleEpisodesPayload is the payload of the deprecated schedule-episodes job
type ScheduleEpisodesPayload struct {
	EventName string `json:"eventName,omitempty"`
}

// GeneratePodcastRequest is the body of a podcast submission
type GeneratePodcastRequest struct {
	SimulationIDs []string `json:"simulationIds" validate:"required,min=1,dive,required"`
}

// JobQueuedResponse acknowledges a single queued job
type JobQueuedResponse struct {
	JobID     string    `json:"jobId"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// JobsQueuedResponse acknowledges a submission split into several jobs
type JobsQueuedResponse struct {
	JobIDs    []string  `json:"jobIds"`
	Status    JobStatus `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

// SimulationGeneratedResult is stored on a finished generate-simulation job
type SimulationGeneratedResult struct {
	EventName     string   `json:"eventName"`
	SimulationIDs []string `json:"simulationIds"`
	EpisodeIDs    []string `json:"episodeIds"`
}

// PodcastResult reports one simulation of a podcast batch
type PodcastResult struct {
	SimulationID string    `json:"simulationId"`
	Status       PodStatus `json:"status"`
	FileURL      string    `json:"fileUrl,omitempty"`
	Duration     int       `json:"duration,omitempty"`
	AudioSize    int       `json:"audioSize,omitempty"`
	Error        string    `json:"error,omitempty"`
}
