package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/episodecast/api/internal/client"
	"github.com/episodecast/api/internal/limiter"
	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/retry"
	"github.com/sourcegraph/conc/iter"
	"github.com/sourcegraph/conc/pool"
)

// ErrSimulationNotFound marks a requested simulation that no longer exists.
var ErrSimulationNotFound = errors.New("simulation not found")

// PodcastOptions tunes the assembler.
type PodcastOptions struct {
	UploadDir        string
	MaxChunks        int
	StageTimeout     time.Duration
	TTSPolicy        retry.Policy
	ConversionPolicy retry.Policy
}

// PodcastAssembler renders simulations to a single uploaded audio file each.
type PodcastAssembler struct {
	sims        SimulationRepository
	assistant   Assistant
	tts         SpeechSynthesizer
	uploader    FileUploader
	notifier    Notifier
	voices      *VoiceAssigner
	ttsLimiter  *limiter.Limiter
	textLimiter *limiter.Limiter
	opts        PodcastOptions
	probe       func([]byte) (time.Duration, error)
}

func NewPodcastAssembler(
	sims SimulationRepository,
	assistant Assistant,
	tts SpeechSynthesizer,
	uploader FileUploader,
	notifier Notifier,
	voices *VoiceAssigner,
	ttsLimiter, textLimiter *limiter.Limiter,
	opts PodcastOptions,
) *PodcastAssembler {
	if opts.UploadDir == "" {
		opts.UploadDir = "chat-simulation/episode"
	}
	if opts.MaxChunks <= 0 {
		opts.MaxChunks = 20
	}
	return &PodcastAssembler{
		sims:        sims,
		assistant:   assistant,
		tts:         tts,
		uploader:    uploader,
		notifier:    notifier,
		voices:      voices,
		ttsLimiter:  ttsLimiter,
		textLimiter: textLimiter,
		opts:        opts,
		probe:       mp3Duration,
	}
}

// Assemble renders every simulation in the batch. Simulations are processed
// independently; a failed or missing one is reported in its result and never
// stops the rest. An error is returned only when the batch cannot be loaded.
func (a *PodcastAssembler) Assemble(ctx context.Context, jobID, userID string, simulationIDs []string) ([]model.PodcastResult, error) {
	sims, err := a.sims.GetSimulations(ctx, simulationIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load simulations: %w", err)
	}
	byID := make(map[string]*model.Simulation, len(sims))
	for i := range sims {
		byID[sims[i].ID] = &sims[i]
	}

	results := iter.Map(simulationIDs, func(id *string) model.PodcastResult {
		sim, ok := byID[*id]
		if !ok {
			log.Printf("Podcast generation skipped for %s: %v", *id, ErrSimulationNotFound)
			a.notifyFailed(jobID, userID, *id, ErrSimulationNotFound)
			return model.PodcastResult{SimulationID: *id, Status: model.PodStatusFailed, Error: ErrSimulationNotFound.Error()}
		}
		res, err := a.assembleOne(ctx, userID, sim)
		if err != nil {
			log.Printf("Podcast generation failed for %s: %v", sim.ID, err)
			a.markFailed(ctx, jobID, userID, sim.ID, err)
			return model.PodcastResult{SimulationID: sim.ID, Status: model.PodStatusFailed, Error: err.Error()}
		}
		log.Printf("Podcast generation completed for %s", sim.ID)
		return *res
	})
	return results, nil
}

func (a *PodcastAssembler) assembleOne(ctx context.Context, userID string, sim *model.Simulation) (*model.PodcastResult, error) {
	turns := sim.ConversationTurns
	if len(turns) == 0 {
		converted, err := a.convertScript(ctx, userID, sim)
		if err != nil {
			return nil, err
		}
		turns = converted
	}

	voiced := a.voices.Assign(turns, sim.Characters)
	if len(voiced) == 0 {
		return nil, fmt.Errorf("simulation %s has no spoken turns", sim.ID)
	}

	segments, err := a.synthesize(ctx, voiced)
	if err != nil {
		return nil, err
	}
	for i, seg := range segments {
		if err := validateMP3(seg); err != nil {
			return nil, fmt.Errorf("turn %d: %w", i, err)
		}
	}

	audio := joinSegments(segments)
	duration, err := probeDuration(audio, segments, a.probe)
	if err != nil {
		return nil, fmt.Errorf("failed to measure audio: %w", err)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("%w: zero duration", ErrInvalidAudio)
	}

	uploadCtx, cancel := withStageTimeout(ctx, a.opts.StageTimeout)
	uploaded, err := a.uploader.UploadFile(uploadCtx, a.opts.UploadDir, audio, ".mp3", "audio/mpeg")
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to upload podcast: %w", err)
	}
	if uploaded == nil || uploaded.SecureURL == "" {
		return nil, fmt.Errorf("upload returned no url")
	}

	completed := model.PodStatusCompleted
	size := len(audio)
	if err := a.sims.UpdateSimulation(ctx, sim.ID, model.SimulationUpdate{
		FileURL:        &uploaded.SecureURL,
		Duration:       &duration,
		AudioSize:      &size,
		GenPodStatus:   &completed,
		UserSimulation: turns,
	}); err != nil {
		return nil, fmt.Errorf("failed to save podcast: %w", err)
	}

	if a.notifier != nil {
		a.notifier.Notify(userID, model.WSNotification{
			Type: model.WSMessageTypePodcastGenerated,
			Data: model.PodcastGeneratedData{SimulationID: sim.ID, FileURL: uploaded.SecureURL},
		})
	}

	return &model.PodcastResult{
		SimulationID: sim.ID,
		Status:       model.PodStatusCompleted,
		FileURL:      uploaded.SecureURL,
		Duration:     duration,
		AudioSize:    size,
	}, nil
}

// synthesize speaks every turn. Calls run out of order under the limiter but
// segments come back in turn order.
func (a *PodcastAssembler) synthesize(ctx context.Context, turns []model.ConversationTurn) ([][]byte, error) {
	segments := make([][]byte, len(turns))
	p := pool.New().WithContext(ctx).WithCancelOnError()
	for i, turn := range turns {
		i, turn := i, turn
		p.Go(func(ctx context.Context) error {
			audio, err := retry.Do(ctx, a.opts.TTSPolicy, func(ctx context.Context) ([]byte, error) {
				return limiter.Schedule(ctx, a.ttsLimiter, func(ctx context.Context) ([]byte, error) {
					callCtx, cancel := withStageTimeout(ctx, a.opts.StageTimeout)
					defer cancel()
					return a.tts.CreateTextToSpeech(callCtx, turn.Text, turn.VoiceID)
				})
			})
			if err != nil {
				return fmt.Errorf("failed to synthesize turn %d (%s): %w", i, turn.Speaker, err)
			}
			segments[i] = audio
			return nil
		})
	}
	if err := p.Wait(); err != nil {
		return nil, err
	}
	return segments, nil
}

type conversionChunk struct {
	Data       []model.ConversationTurn `json:"data"`
	IsLastData bool                     `json:"isLastData"`
}

// convertScript has the assistant split the markdown script into turns, a
// few at a time, until it reports the last chunk.
func (a *PodcastAssembler) convertScript(ctx context.Context, userID string, sim *model.Simulation) ([]model.ConversationTurn, error) {
	if strings.TrimSpace(sim.Script) == "" {
		return nil, fmt.Errorf("simulation %s has no script", sim.ID)
	}

	var (
		threadID string
		turns    []model.ConversationTurn
	)
	for chunk := 0; chunk < a.opts.MaxChunks; chunk++ {
		message := continuationPrompt
		if chunk == 0 {
			message = conversionPrompt(sim.Script, sim.Characters)
		}

		var parsed conversionChunk
		reply, err := retry.Do(ctx, a.opts.ConversionPolicy, func(ctx context.Context) (*client.ThreadMessageResponse, error) {
			resp, err := limiter.Schedule(ctx, a.textLimiter, func(ctx context.Context) (*client.ThreadMessageResponse, error) {
				callCtx, cancel := withStageTimeout(ctx, a.opts.StageTimeout)
				defer cancel()
				return a.assistant.AddMessage(callCtx, &client.ThreadMessageRequest{
					UserID:    userID,
					ThreadID:  threadID,
					Message:   message,
					Component: client.ComponentSimulationConversion,
					ContextID: sim.ID,
				})
			})
			if err != nil {
				return nil, err
			}
			parsed = conversionChunk{}
			if err := decodeReply(resp.Message, &parsed); err != nil {
				return nil, retry.Permanent(err)
			}
			return resp, nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to convert script chunk %d: %w", chunk, err)
		}

		if reply.ThreadID != "" {
			threadID = reply.ThreadID
		}
		turns = append(turns, parsed.Data...)
		if parsed.IsLastData {
			return dropRepeatedHeading(turns, sim.EpisodeTitle, sim.EventName), nil
		}
	}
	return nil, fmt.Errorf("script conversion for %s did not finish within %d chunks", sim.ID, a.opts.MaxChunks)
}

var headingSeparators = regexp.MustCompile(`[-\s]+`)

func normalizeHeading(s string) string {
	return headingSeparators.ReplaceAllString(strings.ToLower(s), " ")
}

// dropRepeatedHeading removes a first turn that only restates the title or event name.
func dropRepeatedHeading(turns []model.ConversationTurn, title, eventName string) []model.ConversationTurn {
	if len(turns) == 0 {
		return turns
	}
	first := normalizeHeading(turns[0].Text)
	for _, name := range []string{title, eventName} {
		if n := normalizeHeading(strings.TrimSpace(name)); n != "" && strings.Contains(first, n) {
			return turns[1:]
		}
	}
	return turns
}

func joinSegments(segments [][]byte) []byte {
	size := 0
	for _, seg := range segments {
		size += len(seg)
	}
	out := make([]byte, 0, size)
	for _, seg := range segments {
		out = append(out, seg...)
	}
	return out
}

// markFailed records a failed render and tells the user. Both are best effort.
func (a *PodcastAssembler) markFailed(ctx context.Context, jobID, userID, simulationID string, cause error) {
	failed := model.PodStatusFailed
	if err := a.sims.UpdateSimulation(ctx, simulationID, model.SimulationUpdate{GenPodStatus: &failed}); err != nil {
		log.Printf("Failed to mark simulation %s as failed: %v", simulationID, err)
	}
	a.notifyFailed(jobID, userID, simulationID, cause)
}

func (a *PodcastAssembler) notifyFailed(jobID, userID, simulationID string, cause error) {
	if a.notifier == nil {
		return
	}
	a.notifier.Notify(userID, model.WSErrorMessage{
		Type:  model.WSMessageTypeJobFailed,
		JobID: jobID,
		Error: model.WSError{Code: "PODCAST_FAILED", Message: fmt.Sprintf("simulation %s: %v", simulationID, cause)},
	})
}
