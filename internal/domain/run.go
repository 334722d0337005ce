package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Default run parameters.
const (
	DefaultMaxRetries      = 3
	DefaultStageTimeout    = 60 * time.Second
	DefaultTargetWordCount = 1500
	DefaultWritingStyle    = "informative"
)

// RunConfig holds per-run parameters supplied on submission.
// Zero values fall back to the service defaults.
type RunConfig struct {
	// TargetWordCount is the approximate length of the finished article.
	TargetWordCount int `json:"target_word_count,omitempty"`

	// WritingStyle guides the writer (e.g. "informative", "conversational").
	WritingStyle string `json:"writing_style,omitempty"`

	// MaxRetries overrides the retry budget per stage. Nil selects the
	// default; zero disables retries.
	MaxRetries *int `json:"max_retries,omitempty"`

	// StageTimeout overrides the per-stage call budget.
	StageTimeout time.Duration `json:"stage_timeout,omitempty"`
}

// RetryBudget returns a MaxRetries value for n.
func RetryBudget(n int) *int {
	return &n
}

// Retries returns the effective retry budget. Unset or negative budgets
// resolve to DefaultMaxRetries.
func (c RunConfig) Retries() int {
	if c.MaxRetries == nil || *c.MaxRetries < 0 {
		return DefaultMaxRetries
	}
	return *c.MaxRetries
}

// WithDefaults returns a copy of c with unset fields populated from defaults.
// An explicit MaxRetries of zero is kept.
func (c RunConfig) WithDefaults(defaults RunConfig) RunConfig {
	if c.TargetWordCount <= 0 {
		c.TargetWordCount = defaults.TargetWordCount
	}
	if c.TargetWordCount <= 0 {
		c.TargetWordCount = DefaultTargetWordCount
	}
	if c.WritingStyle == "" {
		c.WritingStyle = defaults.WritingStyle
	}
	if c.WritingStyle == "" {
		c.WritingStyle = DefaultWritingStyle
	}
	if c.MaxRetries == nil || *c.MaxRetries < 0 {
		c.MaxRetries = defaults.MaxRetries
	}
	c.MaxRetries = RetryBudget(c.Retries())
	if c.StageTimeout <= 0 {
		c.StageTimeout = defaults.StageTimeout
	}
	if c.StageTimeout <= 0 {
		c.StageTimeout = DefaultStageTimeout
	}
	return c
}

// StageResult records one stage attempt. Results are appended to the run's
// log and never mutated after creation.
type StageResult struct {
	Stage      Stage           `json:"stage"`
	Attempt    int             `json:"attempt"`
	Success    bool            `json:"success"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorKind  StageErrorKind  `json:"error_kind,omitempty"`
	Duration   time.Duration   `json:"duration"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Fatal reports whether this failed result must abort the run immediately.
func (r StageResult) Fatal() bool {
	return !r.Success && (r.ErrorKind == StageErrorFatal || r.ErrorKind == StageErrorCancelled)
}

// WorkflowRun is one end-to-end execution of the pipeline for a topic.
// It is owned by the orchestrator goroutine servicing it and mutated only
// through state machine transitions.
type WorkflowRun struct {
	ID     uuid.UUID `json:"id"`
	Topic  string    `json:"topic"`
	Config RunConfig `json:"config"`

	// Stage is the stage to dispatch next, or the terminal stage.
	Stage Stage `json:"stage"`

	// Attempt is the number of failed attempts already made at Stage.
	Attempt int `json:"attempt"`

	Results []StageResult `json:"results"`
	Outcome Outcome       `json:"outcome,omitempty"`

	// FailedStage is the stage that aborted the run, if any.
	FailedStage Stage  `json:"failed_stage,omitempty"`
	LastError   string `json:"last_error,omitempty"`

	CancelRequested bool `json:"cancel_requested,omitempty"`

	// Version increases with every checkpoint write.
	Version int64 `json:"version"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// NewWorkflowRun creates a run at the Pending stage.
func NewWorkflowRun(topic string, cfg RunConfig) *WorkflowRun {
	now := time.Now().UTC()
	return &WorkflowRun{
		ID:        uuid.New(),
		Topic:     topic,
		Config:    cfg,
		Stage:     StagePending,
		Results:   []StageResult{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsTerminal returns true once the run reached Completed or Failed.
func (r *WorkflowRun) IsTerminal() bool {
	return r.Stage.IsTerminal()
}

// LatestPayload returns the payload of the most recent successful result for
// the given stage.
func (r *WorkflowRun) LatestPayload(stage Stage) (json.RawMessage, bool) {
	for i := len(r.Results) - 1; i >= 0; i-- {
		res := r.Results[i]
		if res.Stage == stage && res.Success {
			return res.Payload, true
		}
	}
	return nil, false
}

// Duration returns the wall time between creation and completion, or the
// elapsed time for a running run.
func (r *WorkflowRun) Duration() time.Duration {
	if r.CompletedAt != nil {
		return r.CompletedAt.Sub(r.CreatedAt)
	}
	return time.Since(r.CreatedAt)
}

// Clone returns a deep copy suitable for use as a checkpoint snapshot.
func (r *WorkflowRun) Clone() *WorkflowRun {
	if r == nil {
		return nil
	}
	out := *r
	out.Results = make([]StageResult, len(r.Results))
	for i, res := range r.Results {
		if res.Payload != nil {
			res.Payload = append(json.RawMessage(nil), res.Payload...)
		}
		out.Results[i] = res
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	if r.Config.MaxRetries != nil {
		out.Config.MaxRetries = RetryBudget(*r.Config.MaxRetries)
	}
	return &out
}

// AttemptSummary is the caller-facing view of a single stage attempt.
type AttemptSummary struct {
	Stage    Stage         `json:"stage"`
	Attempt  int           `json:"attempt"`
	Success  bool          `json:"success"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// RunStatus is the structured status returned to callers.
type RunStatus struct {
	RunID           uuid.UUID        `json:"run_id"`
	Topic           string           `json:"topic"`
	Stage           Stage            `json:"stage"`
	Attempt         int              `json:"attempt"`
	Terminal        bool             `json:"terminal"`
	Outcome         Outcome          `json:"outcome,omitempty"`
	FailedStage     Stage            `json:"failed_stage,omitempty"`
	LastError       string           `json:"last_error,omitempty"`
	CancelRequested bool             `json:"cancel_requested,omitempty"`
	History         []AttemptSummary `json:"history"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
}

// Status builds the caller-facing status for the run.
func (r *WorkflowRun) Status() RunStatus {
	history := make([]AttemptSummary, 0, len(r.Results))
	for _, res := range r.Results {
		history = append(history, AttemptSummary{
			Stage:    res.Stage,
			Attempt:  res.Attempt,
			Success:  res.Success,
			Error:    res.Error,
			Duration: res.Duration,
		})
	}
	st := RunStatus{
		RunID:           r.ID,
		Topic:           r.Topic,
		Stage:           r.Stage,
		Attempt:         r.Attempt,
		Terminal:        r.IsTerminal(),
		Outcome:         r.Outcome,
		FailedStage:     r.FailedStage,
		LastError:       r.LastError,
		CancelRequested: r.CancelRequested,
		History:         history,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		st.CompletedAt = &t
	}
	return st
}

// RunFilter narrows ListRuns results.
type RunFilter struct {
	Stage   Stage
	Outcome Outcome
	// Active restricts the result to non-terminal runs.
	Active bool
	Limit  int
}

// Matches reports whether run satisfies the filter (Limit is ignored).
func (f RunFilter) Matches(run *WorkflowRun) bool {
	if f.Stage != "" && run.Stage != f.Stage {
		return false
	}
	if f.Outcome != OutcomeNone && run.Outcome != f.Outcome {
		return false
	}
	if f.Active && run.IsTerminal() {
		return false
	}
	return true
}
