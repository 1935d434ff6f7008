package model

// Schedule types
type ScheduleType string

const (
	ScheduleDaily   ScheduleType = "DAILY"
	ScheduleWeekly  ScheduleType = "WEEKLY"
	ScheduleMonthly ScheduleType = "MONTHLY"
	ScheduleYearly  ScheduleType = "YEARLY"
	ScheduleNever   ScheduleType = "NEVER"
)

var ValidScheduleTypes = []ScheduleType{
	ScheduleDaily, ScheduleWeekly, ScheduleMonthly, ScheduleYearly, ScheduleNever,
}

// Episode status
type EpisodeStatus string

const (
	EpisodeStatusDraft     EpisodeStatus = "Draft"
	EpisodeStatusScheduled EpisodeStatus = "Scheduled"
	EpisodeStatusOngoing   EpisodeStatus = "Ongoing"
	EpisodeStatusPosted    EpisodeStatus = "Posted"
)

// Podcast generation status
type PodStatus string

const (
	PodStatusPending   PodStatus = "Pending"
	PodStatusCompleted PodStatus = "Completed"
	PodStatusFailed    PodStatus = "Failed"
)

// Job status
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusRetrying  JobStatus = "retrying"
	JobStatusSucceeded JobStatus = "succeeded"
	JobStatusFailed    JobStatus = "failed"
)

// Quiz types
type QuizType string

const (
	QuizTypeMultiChoice QuizType = "MULTICHOICE"
	QuizTypeOpenEnded   QuizType = "OPEN_ENDED"
)

// Question kinds requested from the generator
type QuestionKind string

const (
	QuestionKindQuiz QuestionKind = "quiz"
	QuestionKindPoll QuestionKind = "poll"
)

// Gender of a speaking character
type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
)

// Backoff types for queued jobs
type BackoffType string

const (
	BackoffFixed       BackoffType = "fixed"
	BackoffExponential BackoffType = "exponential"
)
