package model

import "time"

// Episode is one scheduled unit of an event's series.
type Episode struct {
	ID            string        `json:"episodeId"`
	EventName     string        `json:"eventName"`
	Title         string        `json:"title"`
	Topics        []string      `json:"topics"`
	Position      int           `json:"position"`
	ScheduledDate *time.Time    `json:"scheduledDate,omitempty"`
	ScheduledType ScheduleType  `json:"scheduledType,omitempty"`
	Status        EpisodeStatus `json:"status"`
	EpisodeNumber int           `json:"episodeNumber"`
	SourceJobID   string        `json:"sourceJobId,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// EpisodeUpdate lists the episode fields to overwrite. Nil fields are left untouched.
type EpisodeUpdate struct {
	ScheduledDate *time.Time
	ScheduledType *ScheduleType
	EpisodeNumber *int
	Status        *EpisodeStatus
}

// IsEmpty reports whether the update would not change anything.
func (u EpisodeUpdate) IsEmpty() bool {
	return u.ScheduledDate == nil && u.ScheduledType == nil && u.EpisodeNumber == nil && u.Status == nil
}
