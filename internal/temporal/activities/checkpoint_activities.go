package activities

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/content-pipeline-service/internal/checkpoint"
	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/observability"
	"github.com/helixir/content-pipeline-service/internal/resilience"
)

// CheckpointActivities reads and writes run snapshots for the pipeline workflow.
type CheckpointActivities struct {
	store   checkpoint.Store
	metrics *observability.Metrics
}

// NewCheckpointActivities creates CheckpointActivities. metrics may be nil.
func NewCheckpointActivities(store checkpoint.Store, metrics *observability.Metrics) *CheckpointActivities {
	return &CheckpointActivities{store: store, metrics: metrics}
}

// LoadCheckpoint returns the latest snapshot of runID. A missing run is a
// non-retryable failure; storage failures are retried by the activity policy.
func (a *CheckpointActivities) LoadCheckpoint(ctx context.Context, runID uuid.UUID) (*domain.WorkflowRun, error) {
	run, err := a.store.Load(ctx, runID)
	if err != nil {
		return nil, checkpointApplicationError("load", err)
	}
	return run, nil
}

// SaveCheckpoint writes run as the latest snapshot. Re-saving the same
// version is idempotent, so the activity is safe to retry.
func (a *CheckpointActivities) SaveCheckpoint(ctx context.Context, run *domain.WorkflowRun) error {
	if run == nil {
		return temporal.NewNonRetryableApplicationError("snapshot must not be nil", resilience.ErrTypeFatal, nil)
	}

	if err := a.store.Save(ctx, run.ID, run); err != nil {
		a.metrics.RecordCheckpointWrite("error")
		activity.GetLogger(ctx).Warn("checkpoint write failed",
			"runID", run.ID,
			"version", run.Version,
			"error", err,
		)
		return checkpointApplicationError("save", err)
	}
	a.metrics.RecordCheckpointWrite("success")
	return nil
}

func checkpointApplicationError(op string, err error) error {
	msg := fmt.Sprintf("checkpoint %s: %v", op, err)
	switch {
	case errors.Is(err, domain.ErrStorageUnavailable):
		return temporal.NewApplicationError(msg, resilience.ErrTypeStorage)
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrInvalidInput),
		errors.Is(err, checkpoint.ErrStaleVersion):
		return temporal.NewNonRetryableApplicationError(msg, resilience.ErrTypeFatal, nil)
	default:
		return temporal.NewApplicationError(msg, resilience.ErrTypeStorage)
	}
}
