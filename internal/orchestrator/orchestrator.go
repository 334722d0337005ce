// Package orchestrator drives workflow runs through the pipeline stages.
//
// Every run is serviced by its own goroutine. The goroutine dispatches the
// current stage to its worker adapter, feeds the result to the state machine
// and checkpoints the run before deciding what to dispatch next. The number of
// runs executing at once is bounded by a weighted semaphore; runs beyond the
// bound wait at Pending until a slot frees up.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/helixir/content-pipeline-service/internal/checkpoint"
	"github.com/helixir/content-pipeline-service/internal/config"
	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/observability"
	"github.com/helixir/content-pipeline-service/internal/resilience"
	"github.com/helixir/content-pipeline-service/internal/workers"
	"github.com/helixir/content-pipeline-service/internal/workflow"
)

// DefaultMaxConcurrentRuns bounds concurrent runs when Options leaves it unset.
const DefaultMaxConcurrentRuns = 16

var errRunFinishing = errors.New("run is already finishing")

// Dispatcher resolves the worker adapter serving a stage.
type Dispatcher interface {
	ForStage(stage domain.Stage) (workers.Adapter, error)
}

// Options configures an Orchestrator.
type Options struct {
	// Defaults fill in zero fields of a submitted RunConfig.
	Defaults domain.RunConfig
	// MaxConcurrentRuns bounds how many runs execute at once.
	MaxConcurrentRuns int
	// RetryDelay is the pause before a failed stage is dispatched again.
	RetryDelay time.Duration
	// StorageBackoff governs checkpoint write retries.
	StorageBackoff resilience.Backoff
	// Publisher receives lifecycle events. Nil disables publishing.
	Publisher Publisher
	Metrics   *observability.Metrics
	Logger    zerolog.Logger
	// Now overrides the clock used for run timestamps.
	Now func() time.Time
}

// OptionsFromConfig maps the workflow configuration section to Options.
// Publisher, Metrics and Logger are left for the caller to set.
func OptionsFromConfig(cfg config.WorkflowConfig) Options {
	return Options{
		Defaults: domain.RunConfig{
			TargetWordCount: cfg.TargetWordCount,
			WritingStyle:    cfg.WritingStyle,
			MaxRetries:      domain.RetryBudget(cfg.MaxRetries),
			StageTimeout:    cfg.StageTimeout,
		},
		MaxConcurrentRuns: cfg.MaxConcurrentRuns,
		RetryDelay:        cfg.RetryDelay,
		StorageBackoff: resilience.Backoff{
			Initial:     cfg.StorageBackoff.Initial,
			Max:         cfg.StorageBackoff.Max,
			Multiplier:  cfg.StorageBackoff.Multiplier,
			MaxAttempts: cfg.StorageBackoff.MaxAttempts,
		},
	}
}

// Orchestrator schedules workflow runs and exposes the caller-facing control
// surface: Submit, Resume, GetStatus, Cancel and ListRuns.
type Orchestrator struct {
	dispatcher Dispatcher
	store      checkpoint.Store
	publisher  Publisher
	metrics    *observability.Metrics
	logger     zerolog.Logger
	now        func() time.Time

	defaults   domain.RunConfig
	retryDelay time.Duration
	backoff    resilience.Backoff
	sem        *semaphore.Weighted

	// runCtx is the parent of every run goroutine. interrupt cancels it on a
	// forced shutdown.
	runCtx    context.Context
	interrupt context.CancelFunc

	// mu guards active, claims and closing. It is never held across store
	// I/O.
	mu     sync.Mutex
	active map[uuid.UUID]*runHandle
	// claims holds the runs whose checkpoint is being read or rewritten by
	// Resume or a parked Cancel. The channel closes when the claim ends.
	claims  map[uuid.UUID]chan struct{}
	closing bool
	wg      sync.WaitGroup
}

// runHandle is the shared view of a run owned by a goroutine.
type runHandle struct {
	mu       sync.RWMutex
	snapshot *domain.WorkflowRun
	cancel   atomic.Bool
	// sealed is set under mu once the run commits to a terminal transition.
	sealed bool
	done   chan struct{}
}

func newRunHandle(run *domain.WorkflowRun) *runHandle {
	return &runHandle{snapshot: run.Clone(), done: make(chan struct{})}
}

func (h *runHandle) set(run *domain.WorkflowRun) {
	h.mu.Lock()
	h.snapshot = run
	h.mu.Unlock()
}

// seal commits the run to finishing without cancellation. It fails when a
// cancel is already pending.
func (h *runHandle) seal() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel.Load() {
		return false
	}
	h.sealed = true
	return true
}

// requestCancel sets the cancel flag and reports whether this call set it.
func (h *runHandle) requestCancel() (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sealed {
		return false, errRunFinishing
	}
	return h.cancel.CompareAndSwap(false, true), nil
}

func (h *runHandle) status() domain.RunStatus {
	h.mu.RLock()
	st := h.snapshot.Status()
	h.mu.RUnlock()
	if h.cancel.Load() {
		st.CancelRequested = true
	}
	return st
}

// New creates an Orchestrator. dispatcher and store are required.
func New(dispatcher Dispatcher, store checkpoint.Store, opts Options) (*Orchestrator, error) {
	if dispatcher == nil {
		return nil, errors.New("orchestrator: dispatcher is required")
	}
	if store == nil {
		return nil, errors.New("orchestrator: checkpoint store is required")
	}

	limit := opts.MaxConcurrentRuns
	if limit <= 0 {
		limit = DefaultMaxConcurrentRuns
	}
	backoff := opts.StorageBackoff
	if backoff.MaxAttempts <= 0 {
		backoff = resilience.DefaultBackoff()
	}
	publisher := opts.Publisher
	if publisher == nil {
		publisher = nopPublisher{}
	}
	now := opts.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}

	runCtx, interrupt := context.WithCancel(context.Background())
	return &Orchestrator{
		dispatcher: dispatcher,
		store:      store,
		publisher:  publisher,
		metrics:    opts.Metrics,
		logger:     observability.WithComponent(opts.Logger, "orchestrator"),
		now:        now,
		defaults:   opts.Defaults.WithDefaults(domain.RunConfig{}),
		retryDelay: opts.RetryDelay,
		backoff:    backoff,
		sem:        semaphore.NewWeighted(int64(limit)),
		runCtx:     runCtx,
		interrupt:  interrupt,
		active:     make(map[uuid.UUID]*runHandle),
		claims:     make(map[uuid.UUID]chan struct{}),
	}, nil
}

// Submit creates a run for topic, persists its initial checkpoint and starts
// executing it in the background. It returns as soon as the checkpoint is
// durable.
func (o *Orchestrator) Submit(ctx context.Context, topic string, cfg domain.RunConfig) (uuid.UUID, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return uuid.Nil, domain.NewValidationError("topic", "must not be empty")
	}
	if cfg.MaxRetries != nil && *cfg.MaxRetries < 0 {
		return uuid.Nil, domain.NewValidationError("max_retries", "must not be negative")
	}
	if cfg.StageTimeout < 0 {
		return uuid.Nil, domain.NewValidationError("stage_timeout", "must not be negative")
	}
	if o.isClosing() {
		return uuid.Nil, domain.ErrShuttingDown
	}

	run := domain.NewWorkflowRun(topic, cfg.WithDefaults(o.defaults))
	now := o.now()
	run.CreatedAt = now
	run.UpdatedAt = now

	logger := observability.WithRunContext(o.logger, run.ID.String(), run.Topic)
	if err := o.persist(ctx, run, logger); err != nil {
		return uuid.Nil, fmt.Errorf("persist initial checkpoint: %w", err)
	}

	logger.Info().
		Int("max_retries", run.Config.Retries()).
		Dur("stage_timeout", run.Config.StageTimeout).
		Msg("run submitted")
	o.publish(ctx, domain.EventTypeRunSubmitted, run)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closing {
		// The checkpoint stays behind for RecoverIncomplete.
		return uuid.Nil, domain.ErrShuttingDown
	}
	id := run.ID
	o.startLocked(run, false)
	return id, nil
}

// Resume loads the latest checkpoint of a run and continues execution from
// the persisted stage and attempt.
func (o *Orchestrator) Resume(ctx context.Context, runID uuid.UUID) error {
	if o.isClosing() {
		return domain.ErrShuttingDown
	}
	h, claim, err := o.claim(ctx, runID)
	if err != nil {
		return err
	}
	if h != nil {
		return domain.NewAlreadyExistsError("active run", runID.String())
	}

	run, err := o.loadResumable(ctx, runID)
	if err != nil {
		o.unclaim(runID, claim)
		return err
	}
	snapshot := run.Clone()

	o.mu.Lock()
	if o.closing {
		o.unclaimLocked(runID, claim)
		o.mu.Unlock()
		return domain.ErrShuttingDown
	}
	o.startLocked(run, run.CancelRequested)
	o.unclaimLocked(runID, claim)
	o.mu.Unlock()

	logger := observability.WithRunContext(o.logger, snapshot.ID.String(), snapshot.Topic)
	logger.Info().
		Str("stage", string(snapshot.Stage)).
		Int("attempt", snapshot.Attempt).
		Int64("version", snapshot.Version).
		Msg("run resumed from checkpoint")
	o.publish(ctx, domain.EventTypeRunResumed, snapshot)
	return nil
}

func (o *Orchestrator) loadResumable(ctx context.Context, runID uuid.UUID) (*domain.WorkflowRun, error) {
	run, err := o.store.Load(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.IsTerminal() {
		return nil, fmt.Errorf("%w: run %s is already %s", domain.ErrInvalidTransition, runID, run.Stage)
	}
	if err := workflow.VerifyLog(run.Results); err != nil {
		return nil, fmt.Errorf("%w: checkpoint for run %s: %v", domain.ErrInvalidInput, runID, err)
	}
	run.Config = run.Config.WithDefaults(o.defaults)
	return run, nil
}

// GetStatus returns the current status of a run. Active runs are answered
// from memory; finished or parked runs from their checkpoint.
func (o *Orchestrator) GetStatus(ctx context.Context, runID uuid.UUID) (domain.RunStatus, error) {
	o.mu.Lock()
	h, ok := o.active[runID]
	o.mu.Unlock()
	if ok {
		return h.status(), nil
	}

	run, err := o.store.Load(ctx, runID)
	if err != nil {
		return domain.RunStatus{}, err
	}
	return run.Status(), nil
}

// Cancel requests cooperative cancellation. An active run observes the flag
// at its next stage boundary, including the end of its final attempt. A
// parked run is moved to Failed with outcome cancelled directly in its
// checkpoint.
func (o *Orchestrator) Cancel(ctx context.Context, runID uuid.UUID) error {
	h, claim, err := o.claim(ctx, runID)
	if err != nil {
		return err
	}
	if h != nil {
		return o.cancelActive(ctx, runID, h)
	}
	defer o.unclaim(runID, claim)

	run, err := o.store.Load(ctx, runID)
	if err != nil {
		return err
	}
	if run.IsTerminal() {
		return fmt.Errorf("%w: run %s is already %s", domain.ErrInvalidTransition, runID, run.Stage)
	}

	sm := workflow.New(workflow.Policy{MaxRetries: run.Config.Retries()})
	run.CancelRequested = true
	if _, err := sm.ApplyCancel(run, o.now()); err != nil {
		return err
	}
	logger := observability.WithRunContext(o.logger, run.ID.String(), run.Topic)
	if err := o.persist(ctx, run, logger); err != nil {
		return err
	}
	logger.Info().Str("stage", string(run.FailedStage)).Msg("parked run cancelled")
	o.publish(ctx, domain.EventTypeRunCancelled, run)
	return nil
}

func (o *Orchestrator) cancelActive(ctx context.Context, runID uuid.UUID, h *runHandle) error {
	first, err := h.requestCancel()
	if err != nil {
		return fmt.Errorf("%w: run %s: %v", domain.ErrInvalidTransition, runID, err)
	}
	if !first {
		return nil
	}
	h.mu.RLock()
	snap := h.snapshot
	h.mu.RUnlock()
	o.logger.Info().Str("run_id", runID.String()).Msg("cancellation requested")
	o.publish(ctx, domain.EventTypeCancelRequested, snap)
	return nil
}

// ListRuns returns the status of checkpointed runs matching filter, newest
// first.
func (o *Orchestrator) ListRuns(ctx context.Context, filter domain.RunFilter) ([]domain.RunStatus, error) {
	runs, err := o.store.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]domain.RunStatus, 0, len(runs))
	for _, run := range runs {
		if h, ok := o.active[run.ID]; ok {
			out = append(out, h.status())
			continue
		}
		out = append(out, run.Status())
	}
	return out, nil
}

// RecoverIncomplete resumes every non-terminal checkpointed run that is not
// already executing. It returns the number of runs resumed; failures to
// resume individual runs are joined into the returned error.
func (o *Orchestrator) RecoverIncomplete(ctx context.Context) (int, error) {
	runs, err := o.store.List(ctx, domain.RunFilter{Active: true})
	if err != nil {
		return 0, fmt.Errorf("list incomplete runs: %w", err)
	}

	var (
		resumed int
		errs    []error
	)
	for _, run := range runs {
		if o.isActive(run.ID) {
			continue
		}
		if err := o.Resume(ctx, run.ID); err != nil {
			o.logger.Warn().Err(err).Str("run_id", run.ID.String()).Msg("failed to recover run")
			errs = append(errs, fmt.Errorf("run %s: %w", run.ID, err))
			continue
		}
		resumed++
	}

	o.logger.Info().Int("resumed", resumed).Int("failed", len(errs)).Msg("recovered incomplete runs")
	return resumed, errors.Join(errs...)
}

// Shutdown stops accepting work and waits for in-flight runs to finish. When
// ctx expires first, running stages are interrupted and their runs are left
// at the last checkpoint for a later Resume.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	o.closing = true
	inFlight := len(o.active)
	o.mu.Unlock()

	o.logger.Info().Int("in_flight", inFlight).Msg("shutting down orchestrator")

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		o.interrupt()
		return nil
	case <-ctx.Done():
		o.interrupt()
		<-done
		o.logger.Warn().Msg("shutdown deadline reached; interrupted runs kept for resume")
		return ctx.Err()
	}
}

// Wait blocks until the run finishes executing or ctx is done. It returns
// immediately for runs that are not active.
func (o *Orchestrator) Wait(ctx context.Context, runID uuid.UUID) error {
	o.mu.Lock()
	h, ok := o.active[runID]
	o.mu.Unlock()
	if !ok {
		return nil
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveRuns returns the number of runs currently owned by a goroutine.
func (o *Orchestrator) ActiveRuns() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.active)
}

// startLocked registers the run and hands it to a new goroutine, which owns
// it from then on. o.mu must be held.
func (o *Orchestrator) startLocked(run *domain.WorkflowRun, cancelled bool) {
	h := newRunHandle(run)
	h.cancel.Store(cancelled)
	o.active[run.ID] = h
	o.wg.Add(1)
	go o.drive(h, run)
}

// claim gives the caller exclusive use of a parked run's checkpoint. When
// the run is executing its handle is returned instead and nothing is
// claimed. Concurrent claims on the same run wait for each other.
func (o *Orchestrator) claim(ctx context.Context, runID uuid.UUID) (*runHandle, chan struct{}, error) {
	for {
		o.mu.Lock()
		if h, ok := o.active[runID]; ok {
			o.mu.Unlock()
			return h, nil, nil
		}
		held, ok := o.claims[runID]
		if !ok {
			claim := make(chan struct{})
			o.claims[runID] = claim
			o.mu.Unlock()
			return nil, claim, nil
		}
		o.mu.Unlock()

		select {
		case <-held:
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		}
	}
}

// unclaimLocked ends a claim. o.mu must be held.
func (o *Orchestrator) unclaimLocked(runID uuid.UUID, claim chan struct{}) {
	if o.claims[runID] == claim {
		delete(o.claims, runID)
		close(claim)
	}
}

func (o *Orchestrator) unclaim(runID uuid.UUID, claim chan struct{}) {
	o.mu.Lock()
	o.unclaimLocked(runID, claim)
	o.mu.Unlock()
}

func (o *Orchestrator) release(runID uuid.UUID, h *runHandle) {
	o.mu.Lock()
	if o.active[runID] == h {
		delete(o.active, runID)
	}
	o.mu.Unlock()
	close(h.done)
}

func (o *Orchestrator) isClosing() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closing
}

func (o *Orchestrator) isActive(runID uuid.UUID) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.active[runID]
	return ok
}
