package orchestrator

import (
	"context"
	"time"

	"github.com/helixir/content-pipeline-service/internal/domain"
)

// publishTimeout bounds a single lifecycle event publication.
const publishTimeout = 5 * time.Second

// Publisher delivers run lifecycle events to external consumers. Delivery is
// best effort: a failed publication is logged and never affects the run.
type Publisher interface {
	Publish(ctx context.Context, event domain.RunEvent) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, domain.RunEvent) error { return nil }

func (o *Orchestrator) publish(ctx context.Context, eventType string, run *domain.WorkflowRun) {
	o.emit(ctx, domain.NewRunEvent(eventType, run))
}

// emit publishes event detached from ctx cancellation so that terminal events
// still go out while the orchestrator shuts down.
func (o *Orchestrator) emit(ctx context.Context, event domain.RunEvent) {
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := o.publisher.Publish(pubCtx, event); err != nil {
		o.logger.Warn().Err(err).
			Str("event_type", event.EventType).
			Str("run_id", event.RunID.String()).
			Msg("failed to publish lifecycle event")
	}
}
