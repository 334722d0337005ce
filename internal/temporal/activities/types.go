// Package activities provides the Temporal activities behind the content
// pipeline workflow: stage dispatch, checkpoint persistence and lifecycle
// event publishing.
//
// Inputs and outputs cross the Temporal serialization boundary, so every
// field is exported and JSON-serializable.
package activities

import (
	"encoding/json"

	"github.com/helixir/content-pipeline-service/internal/domain"
)

// StageOutput is the result of a successful ExecuteStage call.
type StageOutput struct {
	// Payload is the stage's JSON output, recorded verbatim in the run log.
	Payload json.RawMessage
}

// PublishEventInput is the input of the PublishEvent activity.
type PublishEventInput struct {
	// EventType is one of the domain.EventType* constants.
	EventType string

	// Run is the run the event describes.
	Run *domain.WorkflowRun

	// Result, when set, describes a single stage attempt and overrides the
	// run's current stage, attempt and error in the event.
	Result *domain.StageResult
}
