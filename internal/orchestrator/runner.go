package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/observability"
	"github.com/helixir/content-pipeline-service/internal/resilience"
	"github.com/helixir/content-pipeline-service/internal/workers"
	"github.com/helixir/content-pipeline-service/internal/workflow"
)

// drive executes a run until it is terminal, its checkpoint cannot be
// written, or the orchestrator is interrupted. It owns run exclusively.
func (o *Orchestrator) drive(h *runHandle, run *domain.WorkflowRun) {
	defer o.wg.Done()
	defer o.release(run.ID, h)

	logger := observability.WithRunContext(o.logger, run.ID.String(), run.Topic)
	ctx := observability.WithRun(o.runCtx, run.ID.String())

	if err := o.sem.Acquire(ctx, 1); err != nil {
		logger.Info().Msg("run interrupted while queued; checkpoint kept for resume")
		return
	}
	defer o.sem.Release(1)

	o.metrics.RecordRunStarted()
	defer o.metrics.RecordRunStopped()

	sm := workflow.New(workflow.Policy{MaxRetries: run.Config.Retries()})
	for !run.IsTerminal() {
		if h.cancel.Load() {
			run.CancelRequested = true
			if _, err := sm.ApplyCancel(run, o.now()); err != nil {
				logger.Error().Err(err).Msg("failed to apply cancellation")
				return
			}
			if err := o.persist(ctx, run, logger); err != nil {
				return
			}
			h.set(run.Clone())
			break
		}

		result := o.attempt(ctx, run, logger)
		if ctx.Err() != nil {
			logger.Info().
				Str("stage", string(run.Stage)).
				Int("attempt", run.Attempt).
				Msg("run interrupted; checkpoint kept for resume")
			return
		}

		// A cancel that arrived during the attempt wins over its result. A
		// run about to finish is sealed so later cancels are refused.
		cancelled := h.cancel.Load()
		if !cancelled && finishes(sm, run, result) {
			cancelled = !h.seal()
		}

		var (
			t   workflow.Transition
			err error
		)
		if cancelled {
			t, err = sm.ApplyCancelled(run, result)
		} else {
			t, err = sm.Apply(run, result)
		}
		if err != nil {
			logger.Error().Err(err).Msg("state machine rejected stage result")
			return
		}
		o.recordAttempt(result)

		if err := o.persist(ctx, run, logger); err != nil {
			return
		}
		h.set(run.Clone())
		o.logTransition(logger, result, t)
		o.publishAttempt(ctx, run, result)

		if t.Action == domain.ActionRetry && o.retryDelay > 0 {
			timer := time.NewTimer(o.retryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				logger.Info().Msg("run interrupted during retry delay; checkpoint kept for resume")
				return
			case <-timer.C:
			}
		}
	}

	o.finish(ctx, run, logger)
}

// finishes reports whether applying result would make run terminal.
func finishes(sm *workflow.StateMachine, run *domain.WorkflowRun, result domain.StageResult) bool {
	t, err := sm.Transition(run.Stage, run.Attempt, result)
	return err == nil && t.Terminal()
}

// attempt runs the current stage once and returns its result. Pending has no
// worker; its attempt accepts the run into the pipeline.
func (o *Orchestrator) attempt(ctx context.Context, run *domain.WorkflowRun, logger zerolog.Logger) domain.StageResult {
	started := o.now()
	result := domain.StageResult{
		Stage:     run.Stage,
		Attempt:   run.Attempt,
		StartedAt: started,
	}

	var (
		out workers.Output
		err error
	)
	if run.Stage == domain.StagePending {
		result.Success = true
	} else {
		stageLogger := observability.WithStageContext(logger, string(run.Stage), run.Attempt)
		stageLogger.Debug().Msg("dispatching stage")
		out, err = o.dispatch(observability.WithStage(ctx, string(run.Stage)), run)
		if err == nil {
			result.Success = true
			result.Payload = out.Payload
		} else {
			result.Error = err.Error()
			result.ErrorKind = resilience.KindFor(err)
			if result.ErrorKind == domain.StageErrorCancelled && ctx.Err() == nil {
				// The run was not interrupted; the adapter gave up on its own.
				result.ErrorKind = domain.StageErrorTransient
			}
		}
	}

	result.FinishedAt = o.now()
	result.Duration = result.FinishedAt.Sub(started)
	return result
}

// dispatch resolves the stage adapter and invokes it within the run's stage
// timeout.
func (o *Orchestrator) dispatch(ctx context.Context, run *domain.WorkflowRun) (workers.Output, error) {
	adapter, err := o.dispatcher.ForStage(run.Stage)
	if err != nil {
		return workers.Output{}, domain.NewFatalError(run.Stage, run.Attempt, err)
	}
	return invoke(ctx, adapter, workers.Input{
		RunID:   run.ID,
		Topic:   run.Topic,
		Config:  run.Config,
		Stage:   run.Stage,
		Attempt: run.Attempt,
		Prior:   priorPayloads(run),
	}, run.Config.StageTimeout)
}

// invoke calls the adapter and stops waiting once timeout elapses. An adapter
// that ignores its context is left to finish in the background; its result is
// discarded.
func invoke(ctx context.Context, adapter workers.Adapter, in workers.Input, timeout time.Duration) (workers.Output, error) {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		out workers.Output
		err error
	}
	replies := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				replies <- reply{err: domain.NewFatalError(in.Stage, in.Attempt, fmt.Errorf("adapter panic: %v", r))}
			}
		}()
		out, err := adapter.Execute(stageCtx, in)
		replies <- reply{out: out, err: err}
	}()

	timedOut := func() error {
		return domain.NewTimeoutError(in.Stage, in.Attempt, fmt.Errorf("no result within %s", timeout))
	}

	select {
	case r := <-replies:
		if r.err != nil && ctx.Err() == nil && errors.Is(stageCtx.Err(), context.DeadlineExceeded) {
			return workers.Output{}, timedOut()
		}
		return r.out, r.err
	case <-stageCtx.Done():
		if err := ctx.Err(); err != nil {
			return workers.Output{}, err
		}
		return workers.Output{}, timedOut()
	}
}

// priorPayloads collects the successful payloads of the stages preceding the
// run's current stage.
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

// persist writes the next checkpoint version of run, retrying storage
// failures with the configured backoff. On final failure the run's version is
// rolled back and the previous checkpoint remains the latest.
func (o *Orchestrator) persist(ctx context.Context, run *domain.WorkflowRun, logger zerolog.Logger) error {
	run.Version++
	snapshot := run.Clone()

	err := resilience.Retry(ctx, o.backoff,
		func(retry int, err error) {
			o.metrics.RecordStorageRetry("checkpoint")
			logger.Warn().Err(err).
				Int("retry", retry).
				Int64("version", snapshot.Version).
				Msg("checkpoint write failed, retrying")
		},
		func(ctx context.Context) error {
			return o.store.Save(ctx, run.ID, snapshot)
		},
	)
	if err != nil {
		run.Version--
		o.metrics.RecordCheckpointWrite("error")
		logger.Error().Err(err).
			Str("stage", string(run.Stage)).
			Int64("version", snapshot.Version).
			Msg("checkpoint write failed; run parked at last checkpoint")
		return err
	}

	o.metrics.RecordCheckpointWrite("success")
	return nil
}

func (o *Orchestrator) recordAttempt(result domain.StageResult) {
	label := "success"
	if !result.Success {
		label = string(result.ErrorKind)
	}
	o.metrics.RecordStageAttempt(string(result.Stage), label, result.Duration.Seconds())
}

func (o *Orchestrator) logTransition(logger zerolog.Logger, result domain.StageResult, t workflow.Transition) {
	event := logger.Info()
	if !result.Success {
		event = logger.Warn().Str("error", result.Error).Str("error_kind", string(result.ErrorKind))
	}
	event.
		Str("stage", string(result.Stage)).
		Int("attempt", result.Attempt).
		Dur("duration", result.Duration).
		Str("action", string(t.Action)).
		Str("next_stage", string(t.To)).
		Msg("stage attempt finished")
}

func (o *Orchestrator) publishAttempt(ctx context.Context, run *domain.WorkflowRun, result domain.StageResult) {
	if result.Stage == domain.StagePending {
		return
	}
	eventType := domain.EventTypeStageCompleted
	if !result.Success {
		eventType = domain.EventTypeStageFailed
	}
	event := domain.NewRunEvent(eventType, run)
	event.Stage = result.Stage
	event.Attempt = result.Attempt
	event.Error = result.Error
	o.emit(ctx, event)
}

// finish records a terminal run.
func (o *Orchestrator) finish(ctx context.Context, run *domain.WorkflowRun, logger zerolog.Logger) {
	o.metrics.RecordRunFinished(string(run.Outcome), run.Duration().Seconds())

	eventType := domain.EventTypeRunCompleted
	event := logger.Info()
	switch run.Outcome {
	case domain.OutcomeCancelled:
		eventType = domain.EventTypeRunCancelled
	case domain.OutcomeFailure:
		eventType = domain.EventTypeRunFailed
		event = logger.Warn().
			Str("failed_stage", string(run.FailedStage)).
			Str("error", run.LastError)
	}
	event.
		Str("outcome", string(run.Outcome)).
		Int("results", len(run.Results)).
		Dur("duration", run.Duration()).
		Msg("run finished")

	o.publish(ctx, eventType, run)
}
