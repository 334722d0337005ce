package temporal

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"

	"github.com/helixir/content-pipeline-service/internal/config"
	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/observability"
)

const (
	// DefaultRunTimeout bounds one execution of a pipeline run end to end.
	DefaultRunTimeout = 6 * time.Hour

	DefaultHealthCheckTimeout = 5 * time.Second
)

// Error kinds reported by PipelineClient. Kinds with a domain meaning wrap the
// matching domain sentinel.
var (
	ErrWorkflowNotFound       = fmt.Errorf("workflow %w", domain.ErrNotFound)
	ErrWorkflowAlreadyStarted = fmt.Errorf("workflow %w", domain.ErrAlreadyExists)
	ErrInvalidArgument        = fmt.Errorf("temporal: %w", domain.ErrInvalidInput)

	// ErrRejected covers namespace and authorization failures. Retrying will
	// not help until the deployment is fixed.
	ErrRejected = errors.New("rejected by temporal")
	// ErrConnectionFailed covers outages, throttling and deadlines.
	ErrConnectionFailed = errors.New("connection failed")
	ErrQueryFailed      = errors.New("query failed")
	ErrClientClosed     = errors.New("client closed")
)

// TemporalError records which client operation failed, for which run
// execution, and the kind of failure.
type TemporalError struct {
	Op         string
	Kind       error
	WorkflowID string
	Err        error
}

func (e *TemporalError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.WorkflowID != "" {
		msg += " [workflowID=" + e.WorkflowID + "]"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *TemporalError) Unwrap() error { return e.Err }

// Is matches the error's Kind, and through it any wrapped domain sentinel.
func (e *TemporalError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

// classify picks the Kind for an SDK or transport error.
func classify(err error) error {
	switch {
	case isServiceError[*serviceerror.NotFound](err):
		return ErrWorkflowNotFound
	case isServiceError[*serviceerror.WorkflowExecutionAlreadyStarted](err):
		return ErrWorkflowAlreadyStarted
	case isServiceError[*serviceerror.InvalidArgument](err):
		return ErrInvalidArgument
	case isServiceError[*serviceerror.NamespaceNotFound](err),
		isServiceError[*serviceerror.PermissionDenied](err):
		return ErrRejected
	case isServiceError[*serviceerror.QueryFailed](err):
		return ErrQueryFailed
	case errors.Is(err, context.Canceled):
		return ErrClientClosed
	default:
		return ErrConnectionFailed
	}
}

func isServiceError[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}

func wrapTemporalError(op string, err error, workflowID string) error {
	if err == nil {
		return nil
	}
	return &TemporalError{Op: op, Kind: classify(err), WorkflowID: workflowID, Err: err}
}

// IsWorkflowNotFound reports whether err means the run has no execution.
func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

func IsWorkflowAlreadyStarted(err error) bool {
	return errors.Is(err, ErrWorkflowAlreadyStarted)
}

// ClientConfig locates the Temporal server and task queue.
type ClientConfig struct {
	HostPort  string
	Namespace string
	TaskQueue string

	// RunTimeout bounds each execution. Zero means DefaultRunTimeout.
	RunTimeout         time.Duration
	HealthCheckTimeout time.Duration
}

// ClientConfigFrom maps the service configuration onto a ClientConfig.
func ClientConfigFrom(cfg config.TemporalConfig) ClientConfig {
	return ClientConfig{
		HostPort:   cfg.HostPort,
		Namespace:  cfg.Namespace,
		TaskQueue:  cfg.TaskQueue,
		RunTimeout: cfg.RunTimeout,
	}
}

// NewClient dials the Temporal server. SDK logs are routed through logger.
func NewClient(cfg ClientConfig, logger zerolog.Logger) (client.Client, error) {
	c, err := client.Dial(client.Options{
		HostPort:  cfg.HostPort,
		Namespace: cfg.Namespace,
		Logger:    observability.NewTemporalLogger(observability.WithComponent(logger, "temporal-sdk")),
	})
	if err != nil {
		return nil, fmt.Errorf("dial temporal at %s: %w", cfg.HostPort, err)
	}
	return c, nil
}

// WorkflowID is the execution ID of a pipeline run. It is stable across
// resumes, so at most one execution drives a run at a time.
func WorkflowID(runID uuid.UUID) string {
	return "content-run-" + runID.String()
}

// PipelineClient starts, signals and queries the executions of pipeline runs.
type PipelineClient struct {
	client        client.Client
	taskQueue     string
	runTimeout    time.Duration
	healthTimeout time.Duration

	mu     sync.RWMutex
	closed bool
}

func NewPipelineClient(c client.Client, cfg ClientConfig) *PipelineClient {
	pc := &PipelineClient{
		client:        c,
		taskQueue:     cfg.TaskQueue,
		runTimeout:    cfg.RunTimeout,
		healthTimeout: cfg.HealthCheckTimeout,
	}
	if pc.runTimeout <= 0 {
		pc.runTimeout = DefaultRunTimeout
	}
	if pc.healthTimeout <= 0 {
		pc.healthTimeout = DefaultHealthCheckTimeout
	}
	return pc
}

// Close closes the underlying connection. Later calls fail with
// ErrClientClosed.
func (c *PipelineClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil && !c.closed {
		c.client.Close()
	}
	c.closed = true
}

// open fails once the client is closed.
func (c *PipelineClient) open(op, workflowID string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return &TemporalError{Op: op, Kind: ErrClientClosed, WorkflowID: workflowID}
	}
	return nil
}

// Health checks the connection to the Temporal server.
func (c *PipelineClient) Health(ctx context.Context) error {
	if err := c.open("Health", ""); err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()
	_, err := c.client.CheckHealth(ctx, &client.CheckHealthRequest{})
	return wrapTemporalError("Health", err, "")
}

// startOptions builds the options of a run execution. A second start while
// one is running fails instead of attaching to it.
func (c *PipelineClient) startOptions(runID uuid.UUID) client.StartWorkflowOptions {
	return client.StartWorkflowOptions{
		ID:                                       WorkflowID(runID),
		TaskQueue:                                c.taskQueue,
		WorkflowExecutionTimeout:                 c.runTimeout,
		WorkflowIDReusePolicy:                    enumspb.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowExecutionErrorWhenAlreadyStarted: true,
	}
}

// StartRun starts workflowFunc for input. The workflow function must be
// registered with a worker polling the same task queue.
func (c *PipelineClient) StartRun(ctx context.Context, input PipelineInput, workflowFunc interface{}) error {
	opts := c.startOptions(input.RunID)
	if err := c.open("StartRun", opts.ID); err != nil {
		return err
	}
	_, err := c.client.ExecuteWorkflow(ctx, opts, workflowFunc, input)
	return wrapTemporalError("StartRun", err, opts.ID)
}

// RequestCancel signals the running execution of a run to stop at its next
// stage boundary.
func (c *PipelineClient) RequestCancel(ctx context.Context, runID uuid.UUID, reason string) error {
	workflowID := WorkflowID(runID)
	if err := c.open("RequestCancel", workflowID); err != nil {
		return err
	}
	err := c.client.SignalWorkflow(ctx, workflowID, "", SignalCancel, CancelSignal{Reason: reason})
	return wrapTemporalError("RequestCancel", err, workflowID)
}

// QueryStatus asks the latest execution of a run for its status.
func (c *PipelineClient) QueryStatus(ctx context.Context, runID uuid.UUID) (domain.RunStatus, error) {
	workflowID := WorkflowID(runID)
	if err := c.open("QueryStatus", workflowID); err != nil {
		return domain.RunStatus{}, err
	}

	value, err := c.client.QueryWorkflow(ctx, workflowID, "", QueryStatus)
	if err != nil {
		return domain.RunStatus{}, wrapTemporalError("QueryStatus", err, workflowID)
	}
	var status domain.RunStatus
	if err := value.Get(&status); err != nil {
		return domain.RunStatus{}, &TemporalError{Op: "QueryStatus", Kind: ErrQueryFailed, WorkflowID: workflowID, Err: err}
	}
	return status, nil
}
