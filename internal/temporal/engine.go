package temporal

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/helixir/content-pipeline-service/internal/checkpoint"
	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/observability"
	"github.com/helixir/content-pipeline-service/internal/resilience"
)

// WorkflowStarter is the part of PipelineClient the Engine depends on.
type WorkflowStarter interface {
	StartRun(ctx context.Context, input PipelineInput, workflowFunc interface{}) error
	RequestCancel(ctx context.Context, runID uuid.UUID, reason string) error
	QueryStatus(ctx context.Context, runID uuid.UUID) (domain.RunStatus, error)
}

// EventPublisher receives lifecycle events.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.RunEvent) error
}

// EngineOptions configures an Engine.
type EngineOptions struct {
	// Defaults fill in zero fields of a submitted RunConfig.
	Defaults domain.RunConfig
	// StorageBackoff governs the initial checkpoint write.
	StorageBackoff resilience.Backoff
	// Publisher receives submitted and resumed events. Nil disables them.
	Publisher EventPublisher
	Logger    zerolog.Logger
}

// Engine serves the run control surface with Temporal executions instead of
// in-process goroutines. Checkpoints stay the source of truth: every
// execution starts from the run's latest checkpoint.
type Engine struct {
	client       WorkflowStarter
	store        checkpoint.Store
	workflowFunc interface{}
	defaults     domain.RunConfig
	backoff      resilience.Backoff
	publisher    EventPublisher
	logger       zerolog.Logger
}

// NewEngine creates an Engine that starts workflowFunc for every run.
func NewEngine(c WorkflowStarter, store checkpoint.Store, workflowFunc interface{}, opts EngineOptions) (*Engine, error) {
	if c == nil {
		return nil, fmt.Errorf("temporal engine: client is required")
	}
	if store == nil {
		return nil, fmt.Errorf("temporal engine: checkpoint store is required")
	}
	if workflowFunc == nil {
		return nil, fmt.Errorf("temporal engine: workflow function is required")
	}
	backoff := opts.StorageBackoff
	if backoff.MaxAttempts <= 0 {
		backoff = resilience.DefaultBackoff()
	}
	return &Engine{
		client:       c,
		store:        store,
		workflowFunc: workflowFunc,
		defaults:     opts.Defaults,
		backoff:      backoff,
		publisher:    opts.Publisher,
		logger:       observability.WithComponent(opts.Logger, "temporal-engine"),
	}, nil
}

// Submit writes the initial checkpoint of a new run and starts its execution.
// A run whose execution could not be started stays Pending and can be resumed.
func (e *Engine) Submit(ctx context.Context, topic string, cfg domain.RunConfig) (uuid.UUID, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return uuid.Nil, domain.NewValidationError("topic", "must not be empty")
	}
	if cfg.MaxRetries != nil && *cfg.MaxRetries < 0 {
		return uuid.Nil, domain.NewValidationError("max_retries", "must not be negative")
	}
	if cfg.StageTimeout < 0 {
		return uuid.Nil, domain.NewValidationError("stage_timeout", "must not be negative")
	}

	run := domain.NewWorkflowRun(topic, cfg.WithDefaults(e.defaults))
	run.Version = 1
	if err := resilience.Retry(ctx, e.backoff, nil, func(ctx context.Context) error {
		return e.store.Save(ctx, run.ID, run)
	}); err != nil {
		return uuid.Nil, fmt.Errorf("persist initial checkpoint: %w", err)
	}

	logger := observability.WithRunContext(e.logger, run.ID.String(), run.Topic)
	if err := e.client.StartRun(ctx, PipelineInput{RunID: run.ID}, e.workflowFunc); err != nil {
		logger.Error().Err(err).Msg("failed to start workflow; run left pending")
		return uuid.Nil, err
	}

	logger.Info().
		Int("max_retries", run.Config.Retries()).
		Dur("stage_timeout", run.Config.StageTimeout).
		Msg("run submitted")
	e.publish(ctx, domain.EventTypeRunSubmitted, run)
	return run.ID, nil
}

// Resume starts a new execution from the run's latest checkpoint. It fails
// with AlreadyExists while an execution is still running.
func (e *Engine) Resume(ctx context.Context, runID uuid.UUID) error {
	run, err := e.store.Load(ctx, runID)
	if err != nil {
		return err
	}
	if run.IsTerminal() {
		return fmt.Errorf("%w: run %s is already %s", domain.ErrInvalidTransition, runID, run.Stage)
	}

	if err := e.client.StartRun(ctx, PipelineInput{RunID: runID, Cancel: run.CancelRequested}, e.workflowFunc); err != nil {
		if IsWorkflowAlreadyStarted(err) {
			return domain.NewAlreadyExistsError("active run", runID.String())
		}
		return err
	}

	logger := observability.WithRunContext(e.logger, run.ID.String(), run.Topic)
	logger.Info().
		Str("stage", string(run.Stage)).
		Int("attempt", run.Attempt).
		Int64("version", run.Version).
		Msg("run resumed from checkpoint")
	e.publish(ctx, domain.EventTypeRunResumed, run)
	return nil
}

// Cancel signals a running execution. A parked run gets a short execution
// that records the cancellation in its checkpoint.
func (e *Engine) Cancel(ctx context.Context, runID uuid.UUID) error {
	err := e.client.RequestCancel(ctx, runID, "cancel requested")
	if err == nil {
		e.logger.Info().Str("run_id", runID.String()).Msg("cancellation requested")
		return nil
	}
	if !IsWorkflowNotFound(err) {
		return err
	}

	run, err := e.store.Load(ctx, runID)
	if err != nil {
		return err
	}
	if run.IsTerminal() {
		return fmt.Errorf("%w: run %s is already %s", domain.ErrInvalidTransition, runID, run.Stage)
	}
	if err := e.client.StartRun(ctx, PipelineInput{RunID: runID, Cancel: true}, e.workflowFunc); err != nil {
		return err
	}
	e.logger.Info().Str("run_id", runID.String()).Msg("cancellation recorded for parked run")
	return nil
}

// GetStatus answers from the running execution when there is one and from the
// latest checkpoint otherwise.
func (e *Engine) GetStatus(ctx context.Context, runID uuid.UUID) (domain.RunStatus, error) {
	run, err := e.store.Load(ctx, runID)
	if err != nil {
		return domain.RunStatus{}, err
	}
	if run.IsTerminal() {
		return run.Status(), nil
	}

	status, err := e.client.QueryStatus(ctx, runID)
	if err != nil {
		e.logger.Debug().Err(err).Str("run_id", runID.String()).Msg("status query failed; using checkpoint")
		return run.Status(), nil
	}
	return status, nil
}

// ListRuns returns the status of every checkpointed run matching filter.
func (e *Engine) ListRuns(ctx context.Context, filter domain.RunFilter) ([]domain.RunStatus, error) {
	runs, err := e.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	statuses := make([]domain.RunStatus, len(runs))
	for i, run := range runs {
		statuses[i] = run.Status()
	}
	return statuses, nil
}

func (e *Engine) publish(ctx context.Context, eventType string, run *domain.WorkflowRun) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(ctx, domain.NewRunEvent(eventType, run)); err != nil {
		e.logger.Warn().Err(err).
			Str("run_id", run.ID.String()).
			Str("event_type", eventType).
			Msg("failed to publish run event")
	}
}
