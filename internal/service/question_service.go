package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/episodecast/api/internal/client"
	"github.com/episodecast/api/internal/limiter"
	"github.com/episodecast/api/internal/model"
	"github.com/episodecast/api/internal/retry"
	"github.com/google/uuid"
)

// ErrIncompleteQuestions is returned when the round budget runs out before
// enough questions were collected.
var ErrIncompleteQuestions = errors.New("question generation stopped short of the requested count")

// QuestionRequest asks for count questions of one kind about a topic.
type QuestionRequest struct {
	UserID   string
	ThreadID string
	Topic    string
	Count    int
	Kind     model.QuestionKind
	QuizType model.QuizType
}

type questionEnvelope[T any] struct {
	Description string `json:"description"`
	Data        []T    `json:"data"`
}

type pollDraft struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	Answer        string   `json:"answer"`
	AnswerDetails string   `json:"answer_details"`
	Topic         string   `json:"topic"`
}

// QuestionGenerator collects quiz and poll questions over an assistant thread.
type QuestionGenerator struct {
	assistant    Assistant
	limiter      *limiter.Limiter
	policy       retry.Policy
	roundDelay   time.Duration
	stageTimeout time.Duration
	sleep        func(ctx context.Context, d time.Duration) error
	newOptionID  func() string
}

// NewQuestionGenerator creates a generator. lim may be shared with other
// callers of the same assistant.
func NewQuestionGenerator(assistant Assistant, lim *limiter.Limiter, policy retry.Policy, roundDelay, stageTimeout time.Duration) *QuestionGenerator {
	return &QuestionGenerator{
		assistant:    assistant,
		limiter:      lim,
		policy:       policy,
		roundDelay:   roundDelay,
		stageTimeout: stageTimeout,
		sleep:        sleepContext,
		newOptionID:  shortID,
	}
}

// GenerateQuiz returns exactly req.Count questions and the thread they were generated on.
func (g *QuestionGenerator) GenerateQuiz(ctx context.Context, req QuestionRequest) ([]model.Question, string, error) {
	prompt := func(remaining int) string {
		if req.QuizType == model.QuizTypeOpenEnded {
			return openEndedPrompt(req.Topic, remaining)
		}
		return multiChoicePrompt(req.Topic, remaining)
	}
	return collect[model.Question](ctx, g, req, prompt)
}

// GeneratePoll returns exactly req.Count polls. Every option gets an id and a zero vote count.
func (g *QuestionGenerator) GeneratePoll(ctx context.Context, req QuestionRequest) ([]model.PollQuestion, string, error) {
	prompt := func(remaining int) string { return pollPrompt(req.Topic, remaining) }
	drafts, threadID, err := collect[pollDraft](ctx, g, req, prompt)
	if err != nil {
		return nil, threadID, err
	}

	polls := make([]model.PollQuestion, len(drafts))
	for i, d := range drafts {
		options := make([]model.PollOption, len(d.Options))
		for j, value := range d.Options {
			options[j] = model.PollOption{ID: g.newOptionID(), Value: value, Vote: 0}
		}
		polls[i] = model.PollQuestion{
			Question:      d.Question,
			Options:       options,
			Answer:        d.Answer,
			AnswerDetails: d.AnswerDetails,
			Topic:         d.Topic,
		}
	}
	return polls, threadID, nil
}

// collect runs generation rounds until req.Count items are gathered. Each
// round asks only for what is still missing and drops any excess. A round
// that yields nothing still uses up one of the req.Count rounds available.
func collect[T any](ctx context.Context, g *QuestionGenerator, req QuestionRequest, prompt func(remaining int) string) ([]T, string, error) {
	threadID := req.ThreadID
	if req.Count <= 0 {
		return []T{}, threadID, nil
	}

	items := make([]T, 0, req.Count)
	for round := 1; round <= req.Count; round++ {
		remaining := req.Count - len(items)

		reply, err := g.ask(ctx, &client.ThreadMessageRequest{
			UserID:     req.UserID,
			ThreadID:   threadID,
			Message:    prompt(remaining),
			Component:  client.ComponentChatSimulation,
			FileBucket: "chat-simulation-images",
		})
		if err != nil {
			return nil, threadID, fmt.Errorf("failed to generate %s round %d: %w", req.Kind, round, err)
		}
		if threadID == "" {
			threadID = reply.ThreadID
		}

		var batch questionEnvelope[T]
		if err := decodeReply(reply.Message, &batch); err != nil {
			return nil, threadID, fmt.Errorf("%s round %d: %w", req.Kind, round, err)
		}
		if len(batch.Data) > remaining {
			batch.Data = batch.Data[:remaining]
		}
		items = append(items, batch.Data...)

		if len(items) >= req.Count {
			return items, threadID, nil
		}
		if len(batch.Data) == 0 {
			log.Printf("%s round %d on thread %s returned no items", req.Kind, round, threadID)
		}
		if err := g.sleep(ctx, g.roundDelay); err != nil {
			return nil, threadID, err
		}
	}

	return nil, threadID, fmt.Errorf("%w: got %d of %d %s items", ErrIncompleteQuestions, len(items), req.Count, req.Kind)
}

// ask sends one message through the limiter, retrying transport failures.
func (g *QuestionGenerator) ask(ctx context.Context, req *client.ThreadMessageRequest) (*client.ThreadMessageResponse, error) {
	return retry.Do(ctx, g.policy, func(ctx context.Context) (*client.ThreadMessageResponse, error) {
		return limiter.Schedule(ctx, g.limiter, func(ctx context.Context) (*client.ThreadMessageResponse, error) {
			callCtx, cancel := withStageTimeout(ctx, g.stageTimeout)
			defer cancel()
			return g.assistant.AddMessage(callCtx, req)
		})
	})
}

func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func topicLabel(topics []string) string {
	return strings.Join(topics, ", ")
}
