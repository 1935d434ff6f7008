package model

// WebSocket message types
const (
	WSMessageTypeSimulationGenerated = "simulation.generated"
	WSMessageTypePodcastGenerated    = "podcast.generated"
	WSMessageTypeJobFailed           = "job.failed"
	WSMessageTypePing                = "ping"
	WSMessageTypePong                = "pong"
)

// WSMessage represents a generic WebSocket message
type WSMessage struct {
	Type string `json:"type"`
}

// WSNotification is pushed to a user when one of their jobs produces something
type WSNotification struct {
	Type  string      `json:"type"`
	JobID string      `json:"jobId,omitempty"`
	Data  interface{} `json:"data"`
}

// WSErrorMessage represents an error
type WSErrorMessage struct {
	Type  string  `json:"type"`
	JobID string  `json:"jobId"`
	Error WSError `json:"error"`
}

// WSError represents error details
type WSError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PodcastGeneratedData is the body of a podcast.generated notification
type PodcastGeneratedData struct {
	SimulationID string `json:"simulationId"`
	FileURL      string `json:"fileUrl"`
}
