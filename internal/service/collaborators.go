package service

import (
	"context"
	"time"

	"github.com/episodecast/api/internal/client"
	"github.com/episodecast/api/internal/model"
)

// Assistant is the conversational text-generation service
type Assistant interface {
	AddMessage(ctx context.Context, req *client.ThreadMessageRequest) (*client.ThreadMessageResponse, error)
}

// SpeechSynthesizer turns text into encoded audio
type SpeechSynthesizer interface {
	CreateTextToSpeech(ctx context.Context, text, voiceID string) ([]byte, error)
}

// FileUploader stores finished artifacts
type FileUploader interface {
	UploadFile(ctx context.Context, dir string, data []byte, ext, mimeType string) (*client.UploadResult, error)
}

// Notifier pushes a message to every connection of a user
type Notifier interface {
	Notify(userID string, msg interface{})
}

// EpisodeRepository persists episodes and their simulations
type EpisodeRepository interface {
	InsertBatch(ctx context.Context, records []model.EpisodeRecord) error
	UnscheduledEpisodes(ctx context.Context, eventName string) ([]model.Episode, error)
	LatestScheduledEpisode(ctx context.Context, eventName string) (*model.Episode, error)
	UpdateEpisode(ctx context.Context, id string, update model.EpisodeUpdate) error
	DueEpisodes(ctx context.Context, before time.Time) ([]model.Episode, error)
}

// SimulationRepository loads and updates simulations
type SimulationRepository interface {
	GetSimulations(ctx context.Context, ids []string) ([]model.Simulation, error)
	UpdateSimulation(ctx context.Context, id string, update model.SimulationUpdate) error
}

// withStageTimeout bounds a single external call. A zero timeout leaves ctx as is.
func withStageTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
