package model

import "time"

// Character is a member of an event's cast.
type Character struct {
	Name        string `json:"name" validate:"required"`
	Role        string `json:"role"`
	Gender      Gender `json:"gender" validate:"omitempty,oneof=MALE FEMALE"`
	VoiceID     string `json:"voiceId,omitempty"`
	Image       string `json:"image,omitempty"`
	Persona     string `json:"persona,omitempty"`
	Quirks      string `json:"quirks,omitempty"`
	CatchPhrase string `json:"catchPhrase,omitempty"`
}

// ConversationTurn is one spoken line of a simulation. Headings have an empty speaker.
type ConversationTurn struct {
	Speaker string `json:"name"`
	Gender  Gender `json:"gender,omitempty"`
	Image   string `json:"image,omitempty"`
	Text    string `json:"conversation"`
	VoiceID string `json:"voiceId,omitempty"`
}

// Question is a generated quiz question.
type Question struct {
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	Answer        string   `json:"answer"`
	AnswerDetails string   `json:"answer_details"`
	Topic         string   `json:"topic"`
}

// PollOption is a poll choice with its running vote count.
type PollOption struct {
	ID    string `json:"id"`
	Value string `json:"value"`
	Vote  int    `json:"vote"`
}

// PollQuestion is a generated poll.
type PollQuestion struct {
	Question      string       `json:"question"`
	Options       []PollOption `json:"options"`
	Answer        string       `json:"answer,omitempty"`
	AnswerDetails string       `json:"answer_details,omitempty"`
	Topic         string       `json:"topic"`
}

// Simulation is the generated script, quiz and poll of one episode.
type Simulation struct {
	ID                string             `json:"simulationId"`
	EpisodeID         string             `json:"episodeId"`
	EventName         string             `json:"eventName"`
	EpisodeTitle      string             `json:"episodeTitle"`
	EpisodeNumber     int                `json:"episodeNumber"`
	UserID            string             `json:"userId"`
	Script            string             `json:"simulation"`
	ConversationTurns []ConversationTurn `json:"conversationTurns"`
	UserSimulation    []ConversationTurn `json:"userSimulation,omitempty"`
	Characters        []Character        `json:"characterDetails"`
	Quiz              []Question         `json:"quiz"`
	Poll              []PollQuestion     `json:"poll"`
	ThreadID          string             `json:"threadId"`
	FileURL           string             `json:"fileUrl,omitempty"`
	Duration          int                `json:"duration,omitempty"`
	AudioSize         int                `json:"audioSize,omitempty"`
	GenPodStatus      PodStatus          `json:"genPodStatus,omitempty"`
	CreatedAt         time.Time          `json:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt"`
}

// SimulationUpdate lists the simulation fields to overwrite. Nil fields are left untouched.
type SimulationUpdate struct {
	FileURL        *string
	Duration       *int
	AudioSize      *int
	GenPodStatus   *PodStatus
	UserSimulation []ConversationTurn
}

// IsEmpty reports whether the update would not change anything.
func (u SimulationUpdate) IsEmpty() bool {
	return u.FileURL == nil && u.Duration == nil && u.AudioSize == nil && u.GenPodStatus == nil && u.UserSimulation == nil
}

// EpisodeRecord pairs a new episode with its simulation for a single atomic insert.
type EpisodeRecord struct {
	Episode    Episode
	Simulation Simulation
}
