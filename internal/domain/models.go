// Package domain provides domain models and business logic for the Content Pipeline Service.
package domain

// Stage represents one phase of the content generation sequence.
// These values must match the database enum run_stage.
type Stage string

const (
	StagePending      Stage = "pending"
	StageResearching  Stage = "researching"
	StageWriting      Stage = "writing"
	StageEditing      Stage = "editing"
	StageMemoryCommit Stage = "memory_commit"
	StageCompleted    Stage = "completed"
	StageFailed       Stage = "failed"
)

// stageOrder is the fixed, total order every run follows. Failed is not part
// of the sequence; it is reachable from any active stage.
var stageOrder = []Stage{
	StagePending,
	StageResearching,
	StageWriting,
	StageEditing,
	StageMemoryCommit,
	StageCompleted,
}

// StageSequence returns a copy of the fixed stage order.
func StageSequence() []Stage {
	out := make([]Stage, len(stageOrder))
	copy(out, stageOrder)
	return out
}

// WorkStages returns the stages that dispatch work to a worker adapter.
func WorkStages() []Stage {
	return []Stage{StageResearching, StageWriting, StageEditing, StageMemoryCommit}
}

// IsTerminal returns true if the stage is a final state that will not change.
func (s Stage) IsTerminal() bool {
	return s == StageCompleted || s == StageFailed
}

// IsWork returns true if the stage dispatches a worker adapter call.
func (s Stage) IsWork() bool {
	switch s {
	case StageResearching, StageWriting, StageEditing, StageMemoryCommit:
		return true
	default:
		return false
	}
}

// IsValid reports whether s is a known stage.
func (s Stage) IsValid() bool {
	if s == StageFailed {
		return true
	}
	for _, st := range stageOrder {
		if st == s {
			return true
		}
	}
	return false
}

// Index returns the position of the stage in the fixed sequence, or -1 for
// Failed and unknown stages.
func (s Stage) Index() int {
	for i, st := range stageOrder {
		if st == s {
			return i
		}
	}
	return -1
}

// Next returns the stage that follows s in the fixed sequence. The second
// return value is false when s has no successor.
func (s Stage) Next() (Stage, bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[i+1], true
}

// Outcome is the terminal result of a run.
type Outcome string

const (
	OutcomeNone      Outcome = ""
	OutcomeSuccess   Outcome = "success"
	OutcomeFailure   Outcome = "failure"
	OutcomeCancelled Outcome = "cancelled"
)

// TransitionAction is the decision the state machine makes after a stage result.
type TransitionAction string

const (
	ActionAdvance TransitionAction = "advance"
	ActionRetry   TransitionAction = "retry"
	ActionAbort   TransitionAction = "abort"
)

// WorkerRole identifies which worker adapter serves a stage.
type WorkerRole string

const (
	RoleResearch        WorkerRole = "research"
	RoleWriter          WorkerRole = "writer"
	RoleEditor          WorkerRole = "editor"
	RoleMemoryWriteback WorkerRole = "memory_writeback"
)

// RoleForStage maps a work stage to its worker role.
func RoleForStage(s Stage) (WorkerRole, bool) {
	switch s {
	case StageResearching:
		return RoleResearch, true
	case StageWriting:
		return RoleWriter, true
	case StageEditing:
		return RoleEditor, true
	case StageMemoryCommit:
		return RoleMemoryWriteback, true
	default:
		return "", false
	}
}
