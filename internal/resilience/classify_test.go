package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.temporal.io/sdk/temporal"

	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/llm"
)

func TestCategory_String(t *testing.T) {
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "fatal", Fatal.String())
	assert.Equal(t, "storage", Storage.String())
	assert.Equal(t, "cancelled", Cancelled.String())
	assert.Equal(t, "unknown", Category(99).String())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Category
	}{
		{"nil", nil, Fatal},
		{"context canceled", context.Canceled, Cancelled},
		{"wrapped cancelled sentinel", fmt.Errorf("run: %w", domain.ErrCancelled), Cancelled},
		{"shutting down", domain.ErrShuttingDown, Cancelled},
		{"fatal stage error", domain.NewFatalError(domain.StageWriting, 0, errors.New("empty topic")), Fatal},
		{"fatal helper", domain.Fatal(errors.New("bad payload")), Fatal},
		{"validation error", domain.NewValidationError("topic", "required"), Fatal},
		{"dimension mismatch", fmt.Errorf("put: %w", domain.ErrDimensionMismatch), Fatal},
		{"storage error", domain.NewStorageError("checkpoint", "save", errors.New("conn refused")), Storage},
		{"transient stage error", domain.NewTransientError(domain.StageEditing, 1, errors.New("flaky")), Transient},
		{"timeout stage error", domain.NewTimeoutError(domain.StageResearching, 0, context.DeadlineExceeded), Transient},
		{"deadline exceeded", context.DeadlineExceeded, Transient},
		{"llm 429", &llm.APIError{Provider: "openai", StatusCode: http.StatusTooManyRequests}, Transient},
		{"llm 401", &llm.APIError{Provider: "openai", StatusCode: http.StatusUnauthorized}, Fatal},
		{"wrapped llm 503", fmt.Errorf("writer: %w", &llm.APIError{StatusCode: 503}), Transient},
		{"temporal fatal type", temporal.NewApplicationError("boom", ErrTypeFatal), Fatal},
		{"temporal storage type", temporal.NewApplicationError("db down", ErrTypeStorage), Storage},
		{"temporal timeout type", temporal.NewApplicationError("no result", ErrTypeTimeout), Transient},
		{"temporal non-retryable", temporal.NewNonRetryableApplicationError("nope", "other", nil), Fatal},
		{"message timeout", errors.New("read tcp: i/o timeout"), Transient},
		{"message unauthorized", errors.New("upstream said Unauthorized"), Fatal},
		{"unknown defaults to transient", errors.New("something odd"), Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestKindFor(t *testing.T) {
	assert.Equal(t, domain.StageErrorTimeout, KindFor(context.DeadlineExceeded))
	assert.Equal(t, domain.StageErrorTimeout, KindFor(domain.NewTimeoutError(domain.StageWriting, 0, nil)))
	assert.Equal(t, domain.StageErrorFatal, KindFor(domain.Fatal(errors.New("x"))))
	assert.Equal(t, domain.StageErrorFatal, KindFor(domain.NewFatalError(domain.StageWriting, 0, context.DeadlineExceeded)))
	assert.Equal(t, domain.StageErrorCancelled, KindFor(context.Canceled))
	assert.Equal(t, domain.StageErrorTransient, KindFor(errors.New("flaky")))
	assert.Equal(t, domain.StageErrorTimeout, KindFor(temporal.NewApplicationError("no result", ErrTypeTimeout)))
	assert.Equal(t, domain.StageErrorFatal, KindFor(temporal.NewNonRetryableApplicationError("bad", ErrTypeFatal, nil)))
	assert.Equal(t, domain.StageErrorTransient, KindFor(domain.NewStorageError("memory", "put", errors.New("down"))))
}
