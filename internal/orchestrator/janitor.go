package orchestrator

import (
	"context"
	"time"

	"github.com/helixir/content-pipeline-service/internal/checkpoint"
)

// PruneCheckpoints deletes the checkpoints of runs that finished more than
// retention ago.
func (o *Orchestrator) PruneCheckpoints(ctx context.Context, retention time.Duration) (int64, error) {
	return checkpoint.Prune(ctx, o.store, o.now().Add(-retention), o.logger)
}

// RunJanitor prunes expired checkpoints every interval until ctx is done.
// A non-positive interval or retention disables it.
func (o *Orchestrator) RunJanitor(ctx context.Context, retention, interval time.Duration) {
	checkpoint.RunJanitor(ctx, o.store, retention, interval, o.now, o.logger)
}
