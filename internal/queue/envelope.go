package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/episodecast/api/internal/model"
	"github.com/go-playground/validator/v10"
)

var (
	ErrUnknownKind    = errors.New("unknown job kind")
	ErrInvalidPayload = errors.New("invalid job payload")
)

// Envelope is the task body carried through the queue backend.
type Envelope struct {
	JobID            string          `json:"jobId"`
	Kind             model.Kind      `json:"kind"`
	UserID           string          `json:"userId,omitempty"`
	Priority         int             `json:"priority,omitempty"`
	MaxAttempts      int             `json:"maxAttempts"`
	Backoff          Backoff         `json:"backoff"`
	RemoveOnComplete bool            `json:"removeOnComplete"`
	EnqueuedAt       time.Time       `json:"enqueuedAt"`
	Payload          json.RawMessage `json:"payload"`
}

// DecodeEnvelope parses a task body.
func DecodeEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return &env, nil
}

// payloadFactories lists every job kind and the payload type it carries.
var payloadFactories = map[model.Kind]func() interface{}{
	model.KindScheduleEpisodes:   func() interface{} { return &model.ScheduleEpisodesPayload{} },
	model.KindGenerateSimulation: func() interface{} { return &model.GenerateSimulationPayload{} },
	model.KindGeneratePodcast:    func() interface{} { return &model.GeneratePodcastPayload{} },
}

var validate = validator.New()

// DecodePayload parses raw into the payload type of kind and validates it.
func DecodePayload(kind model.Kind, raw []byte) (interface{}, error) {
	factory, ok := payloadFactories[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	payload := factory()
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, payload); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
		}
	}
	if err := validate.Struct(payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return payload, nil
}

// userOf extracts the requesting user from payloads that carry one.
func userOf(payload interface{}) string {
	switch p := payload.(type) {
	case *model.GenerateSimulationPayload:
		return p.UserID
	case *model.GeneratePodcastPayload:
		return p.UserID
	default:
		return ""
	}
}
