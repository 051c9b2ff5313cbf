package protocol

import "time"

// JobEvent is one step of a run, recorded in the journal and broadcast on
// the bus.
type JobEvent struct {
	RunID     string    `json:"run_id"`
	Type      string    `json:"type"`
	File      string    `json:"file,omitempty"`
	Title     string    `json:"title,omitempty"`
	Index     int       `json:"index,omitempty"`
	Path      string    `json:"path,omitempty"`
	Status    int       `json:"status,omitempty"`
	Outcome   string    `json:"outcome,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

const (
	EventRunStarted     = "run.started"
	EventRunPaused      = "run.paused"
	EventRunCompleted   = "run.completed"
	EventJobStarted     = "job.started"
	EventJobCompleted   = "job.completed"
	EventJobRejected    = "job.rejected"
	EventJobFailed      = "job.failed"
	EventItemSucceeded  = "item.synthesized"
	EventItemFailed     = "item.failed"
	EventTitleCollision = "job.title_collision"
)

// Subject builds the bus subject for an event type under prefix.
func Subject(prefix, eventType string) string {
	return prefix + "." + eventType
}
