package temporal

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/helixir/content-pipeline-service/internal/config"
)

// Worker concurrency defaults.
const (
	defaultMaxConcurrentActivities    = 100
	defaultMaxConcurrentWorkflowTasks = 50
	defaultActivityTaskPollers        = 4
	defaultWorkflowTaskPollers        = 2
)

// WorkerConfig contains configuration for the Temporal worker.
type WorkerConfig struct {
	// TaskQueue is the name of the task queue to poll.
	TaskQueue string

	// MaxConcurrentActivityExecutionSize bounds concurrent stage and
	// checkpoint activities. Default: 100
	MaxConcurrentActivityExecutionSize int

	// MaxConcurrentWorkflowTaskExecutionSize bounds concurrent workflow tasks.
	// Default: 50
	MaxConcurrentWorkflowTaskExecutionSize int

	// MaxConcurrentActivityTaskPollers is the number of activity task pollers.
	// Default: 4
	MaxConcurrentActivityTaskPollers int

	// MaxConcurrentWorkflowTaskPollers is the number of workflow task pollers.
	// Default: 2
	MaxConcurrentWorkflowTaskPollers int
}

// DefaultWorkerConfig returns a WorkerConfig with default values.
func DefaultWorkerConfig(taskQueue string) WorkerConfig {
	return WorkerConfig{
		TaskQueue:                              taskQueue,
		MaxConcurrentActivityExecutionSize:     defaultMaxConcurrentActivities,
		MaxConcurrentWorkflowTaskExecutionSize: defaultMaxConcurrentWorkflowTasks,
		MaxConcurrentActivityTaskPollers:       defaultActivityTaskPollers,
		MaxConcurrentWorkflowTaskPollers:       defaultWorkflowTaskPollers,
	}
}

// WorkerConfigFrom derives the worker settings from service configuration.
// Activity concurrency follows the run concurrency limit so a worker never
// executes more stage attempts than the local engine would.
func WorkerConfigFrom(tc config.TemporalConfig, wc config.WorkflowConfig) WorkerConfig {
	cfg := DefaultWorkerConfig(tc.TaskQueue)
	if wc.MaxConcurrentRuns > 0 {
		cfg.MaxConcurrentActivityExecutionSize = wc.MaxConcurrentRuns
	}
	return cfg
}

// workerOptionsFromConfig builds worker.Options from WorkerConfig, applying
// defaults for any zero-valued fields.
func workerOptionsFromConfig(cfg WorkerConfig) worker.Options {
	options := worker.Options{
		MaxConcurrentActivityExecutionSize:     cfg.MaxConcurrentActivityExecutionSize,
		MaxConcurrentWorkflowTaskExecutionSize: cfg.MaxConcurrentWorkflowTaskExecutionSize,
		MaxConcurrentActivityTaskPollers:       cfg.MaxConcurrentActivityTaskPollers,
		MaxConcurrentWorkflowTaskPollers:       cfg.MaxConcurrentWorkflowTaskPollers,
	}

	if options.MaxConcurrentActivityExecutionSize == 0 {
		options.MaxConcurrentActivityExecutionSize = defaultMaxConcurrentActivities
	}
	if options.MaxConcurrentWorkflowTaskExecutionSize == 0 {
		options.MaxConcurrentWorkflowTaskExecutionSize = defaultMaxConcurrentWorkflowTasks
	}
	if options.MaxConcurrentActivityTaskPollers == 0 {
		options.MaxConcurrentActivityTaskPollers = defaultActivityTaskPollers
	}
	if options.MaxConcurrentWorkflowTaskPollers == 0 {
		options.MaxConcurrentWorkflowTaskPollers = defaultWorkflowTaskPollers
	}

	return options
}

// Registrar is the registration surface of a Temporal worker.
type Registrar interface {
	RegisterWorkflow(w interface{})
	RegisterActivity(a interface{})
}

// PipelineRegistration lists everything a worker needs to execute pipeline
// runs. Activities are structs whose exported methods become activities.
type PipelineRegistration struct {
	Workflow   interface{}
	Stage      interface{}
	Checkpoint interface{}
	Events     interface{}
}

// Register registers the workflow and every activity group on r.
func (p PipelineRegistration) Register(r Registrar) error {
	if p.Workflow == nil {
		return fmt.Errorf("register pipeline: workflow is required")
	}
	if p.Stage == nil || p.Checkpoint == nil {
		return fmt.Errorf("register pipeline: stage and checkpoint activities are required")
	}
	r.RegisterWorkflow(p.Workflow)
	r.RegisterActivity(p.Stage)
	r.RegisterActivity(p.Checkpoint)
	if p.Events != nil {
		r.RegisterActivity(p.Events)
	}
	return nil
}

// WorkerManager manages the lifecycle of a Temporal worker.
type WorkerManager struct {
	worker    worker.Worker
	taskQueue string
}

// NewWorkerManager creates a worker polling cfg.TaskQueue with the pipeline
// workflow and activities registered.
func NewWorkerManager(c client.Client, cfg WorkerConfig, pipeline PipelineRegistration) (*WorkerManager, error) {
	if cfg.TaskQueue == "" {
		return nil, fmt.Errorf("task queue is required")
	}

	w := worker.New(c, cfg.TaskQueue, workerOptionsFromConfig(cfg))
	if err := pipeline.Register(w); err != nil {
		return nil, err
	}

	return &WorkerManager{
		worker:    w,
		taskQueue: cfg.TaskQueue,
	}, nil
}

// TaskQueue returns the configured task queue name.
func (m *WorkerManager) TaskQueue() string {
	return m.taskQueue
}

// Start runs the worker and blocks until ctx is cancelled or the worker fails.
func (m *WorkerManager) Start(ctx context.Context) error {
	return StartWorker(ctx, m.worker)
}

// Stop stops the worker gracefully.
func (m *WorkerManager) Stop() {
	m.worker.Stop()
}

// StartWorker runs w and blocks until ctx is cancelled or the worker exits.
func StartWorker(ctx context.Context, w worker.Worker) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- w.Run(worker.InterruptCh())
	}()

	select {
	case <-ctx.Done():
		w.Stop()
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}
