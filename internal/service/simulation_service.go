package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/episodecast/api/internal/client"
	"github.com/episodecast/api/internal/limiter"
	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/retry"
	"github.com/google/uuid"
)

// errEmptySimulation is a content mismatch: the reply parsed but held no script.
var errEmptySimulation = errors.New("assistant returned an empty simulation")

type simulationReply struct {
	Simulation string `json:"simulation"`
}

// SimulationGenerator writes the scripts, quizzes and polls of an event's episodes.
type SimulationGenerator struct {
	assistant    Assistant
	questions    *QuestionGenerator
	episodes     EpisodeRepository
	schedules    *ScheduleService
	limiter      *limiter.Limiter
	policy       retry.Policy
	episodeDelay time.Duration
	stageTimeout time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
}

func NewSimulationGenerator(
	assistant Assistant,
	questions *QuestionGenerator,
	episodes EpisodeRepository,
	schedules *ScheduleService,
	lim *limiter.Limiter,
	policy retry.Policy,
	episodeDelay, stageTimeout time.Duration,
) *SimulationGenerator {
	return &SimulationGenerator{
		assistant:    assistant,
		questions:    questions,
		episodes:     episodes,
		schedules:    schedules,
		limiter:      lim,
		policy:       policy,
		episodeDelay: episodeDelay,
		stageTimeout: stageTimeout,
		sleep:        sleepContext,
	}
}

// GenerateForEvent generates every episode of p, stores them in one batch and
// schedules them. Nothing is stored unless every episode succeeds. Ids derive
// from jobID, so rerunning the same job does not duplicate rows.
func (g *SimulationGenerator) GenerateForEvent(ctx context.Context, jobID string, p *model.GenerateSimulationPayload) (*model.SimulationGeneratedResult, error) {
	episodes := make([]model.EpisodeContent, len(p.Episodes))
	copy(episodes, p.Episodes)
	sort.SliceStable(episodes, func(i, j int) bool { return episodes[i].Position < episodes[j].Position })

	threadID := p.ThreadID
	records := make([]model.EpisodeRecord, 0, len(episodes))

	for i, ep := range episodes {
		record, nextThread, err := g.generateEpisode(ctx, jobID, i, threadID, p, ep)
		if err != nil {
			return nil, fmt.Errorf("episode %d (%s): %w", ep.Position, ep.Title, err)
		}
		threadID = nextThread
		records = append(records, *record)
		log.Printf("Generated episode %d/%d of %s", i+1, len(episodes), p.EventName)

		if i < len(episodes)-1 {
			if err := g.sleep(ctx, g.episodeDelay); err != nil {
				return nil, err
			}
		}
	}

	if err := g.episodes.InsertBatch(ctx, records); err != nil {
		return nil, fmt.Errorf("failed to save episodes: %w", err)
	}
	if _, err := g.schedules.Apply(ctx, p.EventName, p.StartDate, p.ScheduleType); err != nil {
		return nil, fmt.Errorf("failed to schedule episodes: %w", err)
	}

	result := &model.SimulationGeneratedResult{EventName: p.EventName}
	for _, r := range records {
		result.EpisodeIDs = append(result.EpisodeIDs, r.Episode.ID)
		result.SimulationIDs = append(result.SimulationIDs, r.Simulation.ID)
	}
	return result, nil
}

func (g *SimulationGenerator) generateEpisode(ctx context.Context, jobID string, index int, threadID string, p *model.GenerateSimulationPayload, ep model.EpisodeContent) (*model.EpisodeRecord, string, error) {
	prompt := buildSimulationPrompt(episodePrompt{
		Category:           p.Category,
		ChannelName:        p.ChannelName,
		ChannelDescription: p.ChannelDescription,
		EventName:          p.EventName,
		EventDescription:   p.EventDescription,
		EventTemplate:      p.EventTemplate,
		EpisodeTitle:       ep.Title,
		EpisodeTopics:      ep.Topics,
		ActorCount:         p.ActorCount,
		PanelistCount:      p.PanelistCount,
		Characters:         p.Characters,
		Duration:           p.Duration,
		UserPrompt:         p.UserPrompt,
	})

	var script string
	reply, err := retry.Do(ctx, g.policy, func(ctx context.Context) (*client.ThreadMessageResponse, error) {
		resp, err := limiter.Schedule(ctx, g.limiter, func(ctx context.Context) (*client.ThreadMessageResponse, error) {
			callCtx, cancel := withStageTimeout(ctx, g.stageTimeout)
			defer cancel()
			return g.assistant.AddMessage(callCtx, &client.ThreadMessageRequest{
				UserID:     p.UserID,
				ThreadID:   threadID,
				Message:    prompt,
				Component:  client.ComponentChatSimulation,
				FileBucket: "chat-simulation-images",
			})
		})
		if err != nil {
			return nil, err
		}

		var parsed simulationReply
		if err := decodeReply(resp.Message, &parsed); err != nil {
			return nil, retry.Permanent(err)
		}
		if strings.TrimSpace(parsed.Simulation) == "" {
			return nil, errEmptySimulation
		}
		script = parsed.Simulation
		return resp, nil
	})
	if err != nil {
		return nil, threadID, fmt.Errorf("failed to generate script: %w", err)
	}

	threadID = reply.ThreadID
	topic := topicLabel(ep.Topics)
	base := QuestionRequest{UserID: p.UserID, ThreadID: threadID, Topic: topic, Count: p.NoOfQuestions, QuizType: p.QuizType}

	var quiz []model.Question
	if p.IsQuiz && p.NoOfQuestions > 0 {
		req := base
		req.Kind = model.QuestionKindQuiz
		if quiz, _, err = g.questions.GenerateQuiz(ctx, req); err != nil {
			return nil, threadID, err
		}
	}

	var poll []model.PollQuestion
	if p.IsPoll && p.NoOfQuestions > 0 {
		req := base
		req.Kind = model.QuestionKindPoll
		if poll, _, err = g.questions.GeneratePoll(ctx, req); err != nil {
			return nil, threadID, err
		}
	}

	episodeID := derivedID(jobID, "episode", index)
	record := &model.EpisodeRecord{
		Episode: model.Episode{
			ID:          episodeID,
			EventName:   p.EventName,
			Title:       ep.Title,
			Topics:      ep.Topics,
			Position:    ep.Position,
			Status:      model.EpisodeStatusDraft,
			SourceJobID: jobID,
		},
		Simulation: model.Simulation{
			ID:           derivedID(jobID, "simulation", index),
			EpisodeID:    episodeID,
			EventName:    p.EventName,
			EpisodeTitle: ep.Title,
			UserID:       p.UserID,
			Script:       script,
			Characters:   p.Characters,
			Quiz:         quiz,
			Poll:         poll,
			ThreadID:     threadID,
			GenPodStatus: model.PodStatusPending,
		},
	}
	return record, threadID, nil
}

// derivedID is stable for a given job, kind and index.
func derivedID(jobID, kind string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s:%s:%d", jobID, kind, index))).String()
}
