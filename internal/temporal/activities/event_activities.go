package activities

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/resilience"
)

// EventPublisher is the interface used by EventActivities to publish events.
// events.KafkaPublisher satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.RunEvent) error
}

// EventActivities publishes run lifecycle events.
//
// Methods on this struct are registered as Temporal activities via the worker.
type EventActivities struct {
	publisher EventPublisher
}

// NewEventActivities creates a new EventActivities with the given publisher.
func NewEventActivities(publisher EventPublisher) *EventActivities {
	return &EventActivities{publisher: publisher}
}

// PublishEvent publishes one lifecycle event.
//
// The workflow calls it with fire-and-forget semantics: a publishing failure
// never fails the run.
func (a *EventActivities) PublishEvent(ctx context.Context, input PublishEventInput) error {
	if input.Run == nil {
		return temporal.NewNonRetryableApplicationError("event run must not be nil", resilience.ErrTypeFatal, nil)
	}

	event := domain.NewRunEvent(input.EventType, input.Run)
	if input.Result != nil {
		event.Stage = input.Result.Stage
		event.Attempt = input.Result.Attempt
		event.Error = input.Result.Error
	}

	logger := activity.GetLogger(ctx)
	if err := a.publisher.Publish(ctx, event); err != nil {
		logger.Error("failed to publish event",
			"eventType", input.EventType,
			"runID", input.Run.ID,
			"error", err,
		)
		return fmt.Errorf("publish event %s: %w", input.EventType, err)
	}

	logger.Debug("event published",
		"eventType", input.EventType,
		"runID", input.Run.ID,
	)
	return nil
}
