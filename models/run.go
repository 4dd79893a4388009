package models

import "time"

// Objective job lifecycle states.
const (
	ObjectiveStatusProcessing = "processing"
	ObjectiveStatusCompleted  = "completed"
	ObjectiveStatusFailed     = "failed"
)

// ObjectiveJob tracks one asynchronous objective run in the registry.
type ObjectiveJob struct {
	ID         string           `json:"id"`
	Status     string           `json:"status"`
	Objective  string           `json:"objective"`
	SessionID  string           `json:"session_id,omitempty"`
	Output     string           `json:"output,omitempty"`
	Steps      []TrajectoryStep `json:"steps,omitempty"`
	Error      *ErrorDetail     `json:"error,omitempty"`
	WebhookURL string           `json:"-"`
	CreatedAt  time.Time        `json:"created_at"`
	FinishedAt time.Time        `json:"finished_at,omitempty"`
}
