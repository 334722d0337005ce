// Package workflow implements the pipeline state machine.
//
// The state machine is a pure function of (current stage, attempt count,
// stage result). It performs no I/O and holds no mutable state, so it is safe
// for concurrent use and deterministic enough to run inside a Temporal
// workflow.
package workflow

import (
	"fmt"
	"time"

	"github.com/helixir/content-pipeline-service/internal/domain"
)

// validTransitions lists, for every non-terminal stage, the stages it may move
// to. Failed is reachable from every active stage.
var validTransitions = map[domain.Stage][]domain.Stage{
	domain.StagePending:      {domain.StageResearching, domain.StageFailed},
	domain.StageResearching:  {domain.StageResearching, domain.StageWriting, domain.StageFailed},
	domain.StageWriting:      {domain.StageWriting, domain.StageEditing, domain.StageFailed},
	domain.StageEditing:      {domain.StageEditing, domain.StageMemoryCommit, domain.StageFailed},
	domain.StageMemoryCommit: {domain.StageMemoryCommit, domain.StageCompleted, domain.StageFailed},
}

// Policy configures the retry budget.
type Policy struct {
	// MaxRetries is the number of retries allowed per stage after the first
	// attempt. A stage is attempted at most MaxRetries+1 times.
	MaxRetries int
}

// DefaultPolicy returns the default retry policy.
func DefaultPolicy() Policy {
	return Policy{MaxRetries: domain.DefaultMaxRetries}
}

// Transition is the outcome of feeding a stage result to the state machine.
type Transition struct {
	From    domain.Stage            `json:"from"`
	To      domain.Stage            `json:"to"`
	Attempt int                     `json:"attempt"`
	Action  domain.TransitionAction `json:"action"`
	// Error carries the last error detail when Action is Abort.
	Error string `json:"error,omitempty"`
}

// Terminal reports whether the transition moved the run into a terminal stage.
func (t Transition) Terminal() bool {
	return t.To.IsTerminal()
}

// StateMachine computes transitions for a fixed retry policy.
type StateMachine struct {
	policy Policy
}

// New creates a state machine. A negative MaxRetries is treated as zero.
func New(policy Policy) *StateMachine {
	if policy.MaxRetries < 0 {
		policy.MaxRetries = 0
	}
	return &StateMachine{policy: policy}
}

// Policy returns the machine's retry policy.
func (m *StateMachine) Policy() Policy {
	return m.policy
}

// Transition computes the next stage, attempt and action for a stage result.
//
//   - success advances to the next stage in the fixed sequence with attempt 0
//   - a fatal failure aborts into Failed regardless of remaining budget
//   - a failure with attempt < MaxRetries retries the same stage with attempt+1
//   - any other failure aborts into Failed
//
// Calls against a terminal or unknown stage, or with a result for a different
// stage, return domain.ErrInvalidTransition.
func (m *StateMachine) Transition(stage domain.Stage, attempt int, result domain.StageResult) (Transition, error) {
	if err := m.check(stage, attempt); err != nil {
		return Transition{}, err
	}
	if result.Stage != stage {
		return Transition{}, fmt.Errorf("%w: result for stage %s applied to stage %s",
			domain.ErrInvalidTransition, result.Stage, stage)
	}

	var t Transition
	switch {
	case result.Success:
		next, _ := stage.Next()
		t = Transition{From: stage, To: next, Attempt: 0, Action: domain.ActionAdvance}
	case result.Fatal():
		t = Transition{From: stage, To: domain.StageFailed, Attempt: attempt, Action: domain.ActionAbort, Error: result.Error}
	case attempt < m.policy.MaxRetries:
		t = Transition{From: stage, To: stage, Attempt: attempt + 1, Action: domain.ActionRetry, Error: result.Error}
	default:
		t = Transition{From: stage, To: domain.StageFailed, Attempt: attempt, Action: domain.ActionAbort, Error: result.Error}
	}

	if !isAllowed(t.From, t.To) {
		return Transition{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, t.From, t.To)
	}
	return t, nil
}

// Cancel computes the forced abort of a cancelled run.
func (m *StateMachine) Cancel(stage domain.Stage, attempt int) (Transition, error) {
	if err := m.check(stage, attempt); err != nil {
		return Transition{}, err
	}
	return Transition{
		From:    stage,
		To:      domain.StageFailed,
		Attempt: attempt,
		Action:  domain.ActionAbort,
		Error:   domain.ErrCancelled.Error(),
	}, nil
}

// Apply appends result to the run's log and moves the run according to the
// computed transition. The run is left untouched when the transition is invalid.
func (m *StateMachine) Apply(run *domain.WorkflowRun, result domain.StageResult) (Transition, error) {
	t, err := m.Transition(run.Stage, run.Attempt, result)
	if err != nil {
		return Transition{}, err
	}
	run.Results = append(run.Results, result)
	applyTransition(run, t, result.ErrorKind == domain.StageErrorCancelled, result.FinishedAt)
	return t, nil
}

// ApplyCancel forces the run into Failed with outcome Cancelled.
func (m *StateMachine) ApplyCancel(run *domain.WorkflowRun, now time.Time) (Transition, error) {
	t, err := m.Cancel(run.Stage, run.Attempt)
	if err != nil {
		return Transition{}, err
	}
	applyTransition(run, t, true, now)
	return t, nil
}

// ApplyCancelled records the attempt that was in flight when cancellation was
// requested and then forces the run into Failed with outcome Cancelled. The
// result is logged but never advances or retries the run.
func (m *StateMachine) ApplyCancelled(run *domain.WorkflowRun, result domain.StageResult) (Transition, error) {
	t, err := m.Cancel(run.Stage, run.Attempt)
	if err != nil {
		return Transition{}, err
	}
	if result.Stage != run.Stage {
		return Transition{}, fmt.Errorf("%w: result for stage %s applied to stage %s",
			domain.ErrInvalidTransition, result.Stage, run.Stage)
	}
	run.Results = append(run.Results, result)
	run.CancelRequested = true
	applyTransition(run, t, true, result.FinishedAt)
	return t, nil
}

func (m *StateMachine) check(stage domain.Stage, attempt int) error {
	if stage.IsTerminal() {
		return fmt.Errorf("%w: stage %s is terminal", domain.ErrInvalidTransition, stage)
	}
	if _, ok := validTransitions[stage]; !ok {
		return fmt.Errorf("%w: unknown stage %q", domain.ErrInvalidTransition, stage)
	}
	if attempt < 0 || attempt > m.policy.MaxRetries {
		return fmt.Errorf("%w: attempt %d outside retry budget %d", domain.ErrInvalidTransition, attempt, m.policy.MaxRetries)
	}
	return nil
}

func applyTransition(run *domain.WorkflowRun, t Transition, cancelled bool, at time.Time) {
	if at.IsZero() {
		at = time.Now().UTC()
	}
	run.Stage = t.To
	run.Attempt = t.Attempt
	run.UpdatedAt = at

	switch {
	case t.To == domain.StageCompleted:
		run.Outcome = domain.OutcomeSuccess
		run.LastError = ""
		run.CompletedAt = &at
	case t.To == domain.StageFailed:
		run.Outcome = domain.OutcomeFailure
		if cancelled {
			run.Outcome = domain.OutcomeCancelled
		}
		run.FailedStage = t.From
		run.LastError = t.Error
		run.CompletedAt = &at
	case t.Action == domain.ActionRetry:
		run.LastError = t.Error
	default:
		run.LastError = ""
	}
}

// isAllowed validates a transition against the allowed-transition table.
func isAllowed(from, to domain.Stage) bool {
	for _, s := range validTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
