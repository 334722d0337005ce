package temporal

import (
	"github.com/google/uuid"

	"github.com/helixir/content-pipeline-service/internal/domain"
)

// Signal and query names for interacting with running pipeline workflows.
// They live here rather than in the workflows package so callers that only
// start or inspect runs do not depend on the workflow implementation.
const (
	// SignalCancel requests cancellation at the next stage boundary.
	SignalCancel = "cancel"

	// QueryStatus returns the run's domain.RunStatus.
	QueryStatus = "status"
)

// PipelineInput starts a workflow execution for a run. The run's topic,
// config and progress are read from its latest checkpoint, so the same input
// serves fresh submissions and resumes.
type PipelineInput struct {
	// RunID identifies the run and, through WorkflowID, the execution.
	RunID uuid.UUID

	// Cancel marks the run cancelled before any stage is dispatched.
	Cancel bool
}

// PipelineResult is returned by a finished or parked pipeline workflow.
type PipelineResult struct {
	RunID       uuid.UUID
	Stage       domain.Stage
	Outcome     domain.Outcome
	FailedStage domain.Stage
	LastError   string
	Version     int64
}

// CancelSignal is the payload of SignalCancel.
type CancelSignal struct {
	Reason string
}
