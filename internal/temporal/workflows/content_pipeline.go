// Package workflows defines the Temporal workflow that drives a content
// pipeline run through its stages.
package workflows

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/resilience"
	cptemporal "github.com/helixir/content-pipeline-service/internal/temporal"
	"github.com/helixir/content-pipeline-service/internal/temporal/activities"
	"github.com/helixir/content-pipeline-service/internal/workers"
	pipeline "github.com/helixir/content-pipeline-service/internal/workflow"
)

// Re-export signal/query names from the parent temporal package for convenience.
const (
	SignalCancel = cptemporal.SignalCancel
	QueryStatus  = cptemporal.QueryStatus
)

// Activity timeout constants.
const (
	checkpointActivityTimeout = 30 * time.Second
	eventActivityTimeout      = 30 * time.Second
)

var checkpointActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: checkpointActivityTimeout,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:        500 * time.Millisecond,
		BackoffCoefficient:     2.0,
		MaximumInterval:        10 * time.Second,
		MaximumAttempts:        5,
		NonRetryableErrorTypes: []string{resilience.ErrTypeFatal},
	},
}

var eventActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: eventActivityTimeout,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:    500 * time.Millisecond,
		BackoffCoefficient: 2.0,
		MaximumInterval:    10 * time.Second,
		MaximumAttempts:    3,
	},
}

// Activity nil-pointer variables for method references.
var (
	checkpointAct *activities.CheckpointActivities
	stageAct      *activities.StageActivities
	eventAct      *activities.EventActivities
)

// ContentPipelineWorkflow drives one run from its latest checkpoint to a
// terminal stage:
//
//  1. Load the checkpoint and verify its stage log
//  2. Dispatch the current stage as a single activity attempt
//  3. Apply the result through the state machine (advance, retry or abort)
//  4. Checkpoint the new state before anything else observes it
//
// Stage retries are driven by the state machine rather than the activity
// retry policy so that every attempt is recorded in the run log.
//
// The workflow answers the "status" query and stops at the next stage
// boundary after a "cancel" signal. A failed checkpoint write fails the
// execution and leaves the previous checkpoint in place for a later resume.
func ContentPipelineWorkflow(ctx workflow.Context, input cptemporal.PipelineInput) (*cptemporal.PipelineResult, error) {
	logger := workflow.GetLogger(ctx)

	var run *domain.WorkflowRun
	err := workflow.ExecuteActivity(
		workflow.WithActivityOptions(ctx, checkpointActivityOptions),
		checkpointAct.LoadCheckpoint, input.RunID,
	).Get(ctx, &run)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if err := pipeline.VerifyLog(run.Results); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("checkpoint for run %s: %v", run.ID, err), resilience.ErrTypeFatal, nil)
	}
	if run.IsTerminal() {
		logger.Info("run already finished", "runID", run.ID, "stage", run.Stage)
		return resultFor(run), nil
	}

	if err := workflow.SetQueryHandler(ctx, QueryStatus, func() (domain.RunStatus, error) {
		return run.Status(), nil
	}); err != nil {
		return nil, fmt.Errorf("register query handler: %w", err)
	}

	cancelRequested := input.Cancel || run.CancelRequested
	signalCh := workflow.GetSignalChannel(ctx, SignalCancel)
	workflow.Go(ctx, func(gCtx workflow.Context) {
		var sig cptemporal.CancelSignal
		signalCh.Receive(gCtx, &sig)
		logger.Info("received cancel signal", "runID", run.ID, "reason", sig.Reason)
		cancelRequested = true
	})

	sm := pipeline.New(pipeline.Policy{MaxRetries: run.Config.Retries()})
	for !run.IsTerminal() {
		if cancelRequested {
			next := run.Clone()
			next.CancelRequested = true
			if _, err := sm.ApplyCancel(next, workflow.Now(ctx)); err != nil {
				return nil, fmt.Errorf("apply cancellation: %w", err)
			}
			if err := saveCheckpoint(ctx, run, next); err != nil {
				return nil, err
			}
			run = next
			break
		}

		result := executeStage(ctx, run)
		if ctx.Err() != nil {
			// The execution itself was cancelled. The interrupted attempt is
			// dropped and the run is cancelled on a context that survives.
			ctx, _ = workflow.NewDisconnectedContext(ctx)
			cancelRequested = true
			continue
		}

		// A cancel signal received during the attempt wins over its result.
		next := run.Clone()
		var (
			t   pipeline.Transition
			err error
		)
		if cancelRequested {
			t, err = sm.ApplyCancelled(next, result)
		} else {
			t, err = sm.Apply(next, result)
		}
		if err != nil {
			return nil, fmt.Errorf("apply stage result: %w", err)
		}
		if err := saveCheckpoint(ctx, run, next); err != nil {
			return nil, err
		}
		run = next

		logger.Info("stage attempt finished",
			"runID", run.ID,
			"stage", result.Stage,
			"attempt", result.Attempt,
			"success", result.Success,
			"action", t.Action,
			"nextStage", t.To,
		)
		if result.Stage != domain.StagePending {
			eventType := domain.EventTypeStageCompleted
			if !result.Success {
				eventType = domain.EventTypeStageFailed
			}
			publish(ctx, eventType, run, &result)
		}
	}

	eventType := domain.EventTypeRunCompleted
	switch run.Outcome {
	case domain.OutcomeCancelled:
		eventType = domain.EventTypeRunCancelled
	case domain.OutcomeFailure:
		eventType = domain.EventTypeRunFailed
	}
	publish(ctx, eventType, run, nil)

	logger.Info("run finished",
		"runID", run.ID,
		"outcome", run.Outcome,
		"failedStage", run.FailedStage,
		"results", len(run.Results),
	)
	return resultFor(run), nil
}

// executeStage runs one attempt of the run's current stage. Pending has no
// worker; its attempt accepts the run into the pipeline.
func executeStage(ctx workflow.Context, run *domain.WorkflowRun) domain.StageResult {
	started := workflow.Now(ctx)
	result := domain.StageResult{
		Stage:     run.Stage,
		Attempt:   run.Attempt,
		StartedAt: started,
	}

	if run.Stage == domain.StagePending {
		result.Success = true
	} else {
		stageCtx := workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
			StartToCloseTimeout: run.Config.StageTimeout,
			RetryPolicy:         &temporal.RetryPolicy{MaximumAttempts: 1},
		})

		var out activities.StageOutput
		err := workflow.ExecuteActivity(stageCtx, stageAct.ExecuteStage, workers.Input{
			RunID:   run.ID,
			Topic:   run.Topic,
			Config:  run.Config,
			Stage:   run.Stage,
			Attempt: run.Attempt,
			Prior:   priorPayloads(run),
		}).Get(ctx, &out)
		if err != nil {
			result.Error, result.ErrorKind = stageFailure(err)
		} else {
			result.Success = true
			result.Payload = out.Payload
		}
	}

	result.FinishedAt = workflow.Now(ctx)
	result.Duration = result.FinishedAt.Sub(started)
	return result
}

// stageFailure extracts the message and kind recorded for a failed attempt.
func stageFailure(err error) (string, domain.StageErrorKind) {
	var timeoutErr *temporal.TimeoutError
	if errors.As(err, &timeoutErr) {
		return fmt.Sprintf("%s: %s", domain.ErrStageTimeout, timeoutErr.Error()), domain.StageErrorTimeout
	}
	var canceledErr *temporal.CanceledError
	if errors.As(err, &canceledErr) {
		return domain.ErrCancelled.Error(), domain.StageErrorCancelled
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Error(), resilience.KindFor(appErr)
	}
	return err.Error(), resilience.KindFor(err)
}

// priorPayloads collects the successful payloads of the stages preceding the
// run's current stage. Stages are walked in pipeline order, never by map
// iteration, so the input is identical on replay.
func priorPayloads(run *domain.WorkflowRun) map[domain.Stage]json.RawMessage {
	prior := make(map[domain.Stage]json.RawMessage)
	for _, stage := range domain.WorkStages() {
		if stage == run.Stage {
			break
		}
		if payload, ok := run.LatestPayload(stage); ok {
			prior[stage] = payload
		}
	}
	return prior
}

// saveCheckpoint persists next as the version after prev.
func saveCheckpoint(ctx workflow.Context, prev, next *domain.WorkflowRun) error {
	next.Version = prev.Version + 1
	err := workflow.ExecuteActivity(
		workflow.WithActivityOptions(ctx, checkpointActivityOptions),
		checkpointAct.SaveCheckpoint, next,
	).Get(ctx, nil)
	if err != nil {
		workflow.GetLogger(ctx).Error("checkpoint write failed; run parked at last checkpoint",
			"runID", next.ID,
			"stage", prev.Stage,
			"version", next.Version,
			"error", err,
		)
		return fmt.Errorf("save checkpoint version %d: %w", next.Version, err)
	}
	return nil
}

// publish emits a lifecycle event without waiting for it.
func publish(ctx workflow.Context, eventType string, run *domain.WorkflowRun, result *domain.StageResult) {
	_ = workflow.ExecuteActivity(
		workflow.WithActivityOptions(ctx, eventActivityOptions),
		eventAct.PublishEvent, activities.PublishEventInput{
			EventType: eventType,
			Run:       run,
			Result:    result,
		},
	)
}

func resultFor(run *domain.WorkflowRun) *cptemporal.PipelineResult {
	return &cptemporal.PipelineResult{
		RunID:       run.ID,
		Stage:       run.Stage,
		Outcome:     run.Outcome,
		FailedStage: run.FailedStage,
		LastError:   run.LastError,
		Version:     run.Version,
	}
}
