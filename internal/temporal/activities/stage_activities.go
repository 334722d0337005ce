package activities

import (
	"context"
	"fmt"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/observability"
	"github.com/helixir/content-pipeline-service/internal/resilience"
	"github.com/helixir/content-pipeline-service/internal/workers"
)

// Dispatcher resolves the worker adapter serving a stage.
type Dispatcher interface {
	ForStage(stage domain.Stage) (workers.Adapter, error)
}

// StageActivities runs worker adapters on behalf of the pipeline workflow.
//
// Methods on this struct are registered as Temporal activities via the worker.
type StageActivities struct {
	dispatcher Dispatcher
	metrics    *observability.Metrics
}

// NewStageActivities creates StageActivities. metrics may be nil.
func NewStageActivities(dispatcher Dispatcher, metrics *observability.Metrics) *StageActivities {
	return &StageActivities{dispatcher: dispatcher, metrics: metrics}
}

// ExecuteStage runs one attempt of in.Stage. The activity deadline is the
// stage timeout. Failures are returned as ApplicationErrors whose type carries
// the stage error kind; fatal failures are non-retryable.
func (a *StageActivities) ExecuteStage(ctx context.Context, in workers.Input) (*StageOutput, error) {
	logger := activity.GetLogger(ctx)
	logger.Info("executing stage",
		"runID", in.RunID,
		"stage", in.Stage,
		"attempt", in.Attempt,
	)

	started := time.Now()
	out, err := a.execute(ctx, in)
	elapsed := time.Since(started).Seconds()

	if err != nil {
		kind := resilience.KindFor(err)
		if kind == domain.StageErrorCancelled && ctx.Err() == nil {
			// The activity was not cancelled; the adapter gave up on its own.
			kind = domain.StageErrorTransient
		}
		a.metrics.RecordStageAttempt(string(in.Stage), string(kind), elapsed)
		logger.Warn("stage attempt failed",
			"runID", in.RunID,
			"stage", in.Stage,
			"attempt", in.Attempt,
			"kind", kind,
			"error", err,
		)
		return nil, stageApplicationError(kind, err)
	}

	a.metrics.RecordStageAttempt(string(in.Stage), "success", elapsed)
	return &StageOutput{Payload: out.Payload}, nil
}

func (a *StageActivities) execute(ctx context.Context, in workers.Input) (out workers.Output, err error) {
	adapter, err := a.dispatcher.ForStage(in.Stage)
	if err != nil {
		return workers.Output{}, domain.NewFatalError(in.Stage, in.Attempt, err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = domain.NewFatalError(in.Stage, in.Attempt, fmt.Errorf("adapter panic: %v", r))
		}
	}()
	return adapter.Execute(observability.WithStage(observability.WithRun(ctx, in.RunID.String()), string(in.Stage)), in)
}

// stageApplicationError converts a stage failure into the ApplicationError the
// workflow classifies.
func stageApplicationError(kind domain.StageErrorKind, err error) error {
	switch kind {
	case domain.StageErrorFatal:
		return temporal.NewNonRetryableApplicationError(err.Error(), resilience.ErrTypeFatal, nil)
	case domain.StageErrorTimeout:
		return temporal.NewApplicationError(err.Error(), resilience.ErrTypeTimeout)
	default:
		return temporal.NewApplicationError(err.Error(), resilience.ErrTypeTransient)
	}
}
