package temporal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.temporal.io/api/serviceerror"

	"github.com/helixir/content-pipeline-service/internal/config"
	"github.com/helixir/content-pipeline-service/internal/domain"
)

func TestTemporalError(t *testing.T) {
	t.Run("Error includes all fields", func(t *testing.T) {
		err := &TemporalError{
			Op:         "StartRun",
			Kind:       ErrWorkflowNotFound,
			WorkflowID: "content-run-123",
			Err:        errors.New("underlying error"),
		}

		msg := err.Error()
		assert.Contains(t, msg, "StartRun")
		assert.Contains(t, msg, "workflow not found")
		assert.Contains(t, msg, "content-run-123")
		assert.Contains(t, msg, "underlying error")
	})

	t.Run("Error without workflow ID", func(t *testing.T) {
		err := &TemporalError{
			Op:   "Health",
			Kind: ErrConnectionFailed,
		}

		msg := err.Error()
		assert.Contains(t, msg, "Health")
		assert.Contains(t, msg, "connection failed")
		assert.NotContains(t, msg, "workflowID")
	})

	t.Run("Unwrap returns underlying error", func(t *testing.T) {
		underlying := errors.New("underlying")
		err := &TemporalError{Op: "Test", Kind: ErrConnectionFailed, Err: underlying}

		assert.Equal(t, underlying, err.Unwrap())
	})

	t.Run("Is matches Kind and domain sentinels", func(t *testing.T) {
		err := &TemporalError{Op: "Test", Kind: ErrWorkflowNotFound}

		assert.True(t, errors.Is(err, ErrWorkflowNotFound))
		assert.True(t, errors.Is(err, domain.ErrNotFound))
		assert.False(t, errors.Is(err, ErrWorkflowAlreadyStarted))
	})

	t.Run("already started matches domain AlreadyExists", func(t *testing.T) {
		err := &TemporalError{Op: "StartRun", Kind: ErrWorkflowAlreadyStarted}

		assert.True(t, errors.Is(err, domain.ErrAlreadyExists))
		assert.True(t, IsWorkflowAlreadyStarted(err))
	})
}

func TestWrapTemporalError(t *testing.T) {
	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, wrapTemporalError("Op", nil, ""))
	})

	tests := []struct {
		name string
		err  error
		want error
	}{
		{"not found", serviceerror.NewNotFound("gone"), ErrWorkflowNotFound},
		{"already started", serviceerror.NewWorkflowExecutionAlreadyStarted("running", "", ""), ErrWorkflowAlreadyStarted},
		{"invalid argument", &serviceerror.InvalidArgument{Message: "bad"}, ErrInvalidArgument},
		{"namespace not found", &serviceerror.NamespaceNotFound{Message: "content-pipeline"}, ErrRejected},
		{"permission denied", &serviceerror.PermissionDenied{Message: "nope"}, ErrRejected},
		{"query failed", &serviceerror.QueryFailed{Message: "panic in handler"}, ErrQueryFailed},
		{"unavailable", &serviceerror.Unavailable{Message: "down"}, ErrConnectionFailed},
		{"resource exhausted", &serviceerror.ResourceExhausted{Message: "busy"}, ErrConnectionFailed},
		{"deadline exceeded", &serviceerror.DeadlineExceeded{Message: "slow"}, ErrConnectionFailed},
		{"context deadline", context.DeadlineExceeded, ErrConnectionFailed},
		{"context canceled", context.Canceled, ErrClientClosed},
		{"unknown", errors.New("boom"), ErrConnectionFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wrapTemporalError("Op", fmt.Errorf("wrapped: %w", tt.err), "content-run-1")

			var te *TemporalError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.want, te.Kind)
			assert.Equal(t, "content-run-1", te.WorkflowID)
			assert.True(t, errors.Is(err, tt.want))
		})
	}

	t.Run("invalid argument maps to domain invalid input", func(t *testing.T) {
		err := wrapTemporalError("StartRun", &serviceerror.InvalidArgument{Message: "bad"}, "")
		assert.True(t, errors.Is(err, domain.ErrInvalidInput))
	})
}

func TestIsHelpers(t *testing.T) {
	notFound := wrapTemporalError("QueryStatus", serviceerror.NewNotFound("gone"), "w")
	assert.True(t, IsWorkflowNotFound(notFound))
	assert.False(t, IsWorkflowAlreadyStarted(notFound))

	started := wrapTemporalError("StartRun", serviceerror.NewWorkflowExecutionAlreadyStarted("running", "", ""), "w")
	assert.True(t, IsWorkflowAlreadyStarted(started))
	assert.False(t, IsWorkflowNotFound(started))
}

func TestWorkflowID(t *testing.T) {
	runID := uuid.New()

	id := WorkflowID(runID)
	assert.True(t, strings.HasPrefix(id, "content-run-"))
	assert.True(t, strings.HasSuffix(id, runID.String()))
	assert.Equal(t, id, WorkflowID(runID))
	assert.NotEqual(t, id, WorkflowID(uuid.New()))
}

func TestPipelineClient_Closed(t *testing.T) {
	c := NewPipelineClient(nil, ClientConfig{TaskQueue: "content-pipeline-tasks"})
	c.Close()
	ctx := context.Background()
	runID := uuid.New()

	assert.ErrorIs(t, c.Health(ctx), ErrClientClosed)
	assert.ErrorIs(t, c.StartRun(ctx, PipelineInput{RunID: runID}, func() {}), ErrClientClosed)
	assert.ErrorIs(t, c.RequestCancel(ctx, runID, "stop"), ErrClientClosed)

	_, err := c.QueryStatus(ctx, runID)
	assert.ErrorIs(t, err, ErrClientClosed)
	var te *TemporalError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, WorkflowID(runID), te.WorkflowID)

	// Closing twice is a no-op.
	c.Close()
}

func TestNewPipelineClient_Defaults(t *testing.T) {
	c := NewPipelineClient(nil, ClientConfig{TaskQueue: "q"})
	assert.Equal(t, DefaultHealthCheckTimeout, c.healthTimeout)
	assert.Equal(t, DefaultRunTimeout, c.runTimeout)

	c = NewPipelineClient(nil, ClientConfig{TaskQueue: "q", RunTimeout: time.Hour, HealthCheckTimeout: time.Second})
	assert.Equal(t, time.Second, c.healthTimeout)
	assert.Equal(t, time.Hour, c.runTimeout)
}

func TestPipelineClient_StartOptions(t *testing.T) {
	c := NewPipelineClient(nil, ClientConfig{TaskQueue: "content-pipeline-tasks", RunTimeout: 2 * time.Hour})
	runID := uuid.New()

	opts := c.startOptions(runID)
	assert.Equal(t, WorkflowID(runID), opts.ID)
	assert.Equal(t, "content-pipeline-tasks", opts.TaskQueue)
	assert.Equal(t, 2*time.Hour, opts.WorkflowExecutionTimeout)
	assert.True(t, opts.WorkflowExecutionErrorWhenAlreadyStarted)
}

func TestClientConfigFrom(t *testing.T) {
	cc := ClientConfigFrom(config.TemporalConfig{
		HostPort:   "temporal:7233",
		Namespace:  "content-pipeline",
		TaskQueue:  "content-pipeline-tasks",
		RunTimeout: 3 * time.Hour,
	})

	assert.Equal(t, "temporal:7233", cc.HostPort)
	assert.Equal(t, "content-pipeline", cc.Namespace)
	assert.Equal(t, "content-pipeline-tasks", cc.TaskQueue)
	assert.Equal(t, 3*time.Hour, cc.RunTimeout)
	assert.Zero(t, cc.HealthCheckTimeout)
}
