package domain

import (
	"time"

	"github.com/google/uuid"
)

// Event type constants for run lifecycle events.
const (
	EventTypeRunSubmitted    = "run.submitted"
	EventTypeRunResumed      = "run.resumed"
	EventTypeStageCompleted  = "run.stage_completed"
	EventTypeStageFailed     = "run.stage_failed"
	EventTypeRunCompleted    = "run.completed"
	EventTypeRunFailed       = "run.failed"
	EventTypeRunCancelled    = "run.cancelled"
	EventTypeCancelRequested = "run.cancel_requested"
)

// RunEvent is a lifecycle notification published for external consumers.
type RunEvent struct {
	EventID   uuid.UUID `json:"event_id"`
	EventType string    `json:"event_type"`
	RunID     uuid.UUID `json:"run_id"`
	Topic     string    `json:"topic"`
	Stage     Stage     `json:"stage"`
	Attempt   int       `json:"attempt"`
	Outcome   Outcome   `json:"outcome,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewRunEvent creates an event describing the run's current position.
func NewRunEvent(eventType string, run *WorkflowRun) RunEvent {
	return RunEvent{
		EventID:   uuid.New(),
		EventType: eventType,
		RunID:     run.ID,
		Topic:     run.Topic,
		Stage:     run.Stage,
		Attempt:   run.Attempt,
		Outcome:   run.Outcome,
		Error:     run.LastError,
		CreatedAt: time.Now().UTC(),
	}
}

// Command types accepted on the control topic.
const (
	CommandCancel = "cancel"
	CommandResume = "resume"
)

// RunCommand is a control message consumed from the command topic.
type RunCommand struct {
	Command string    `json:"command"`
	RunID   uuid.UUID `json:"run_id"`
}
