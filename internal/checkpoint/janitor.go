package checkpoint

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Prune deletes the checkpoints of runs that finished before cutoff.
func Prune(ctx context.Context, store Store, cutoff time.Time, logger zerolog.Logger) (int64, error) {
	n, err := store.DeleteTerminalBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		logger.Info().Int64("deleted", n).Time("cutoff", cutoff).Msg("pruned expired checkpoints")
	}
	return n, nil
}

// RunJanitor prunes checkpoints older than retention every interval until
// ctx is done. A non-positive interval or retention disables it.
func RunJanitor(ctx context.Context, store Store, retention, interval time.Duration, now func() time.Time, logger zerolog.Logger) {
	if interval <= 0 || retention <= 0 {
		return
	}
	if now == nil {
		now = time.Now
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := Prune(ctx, store, now().Add(-retention), logger); err != nil {
				logger.Warn().Err(err).Msg("checkpoint cleanup failed")
			}
		}
	}
}
