// Package checkpoint persists workflow run snapshots so that runs can be
// resumed after a restart from their last recorded stage attempt.
package checkpoint

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/helixir/content-pipeline-service/internal/domain"
)

// ErrStaleVersion is returned when a snapshot is older than the stored one.
// Re-saving the stored version is allowed so that retried writes are idempotent.
var ErrStaleVersion = errors.New("stale checkpoint version")

// Store persists run snapshots keyed by run ID.
type Store interface {
	// Save durably records snapshot as the latest state of runID.
	Save(ctx context.Context, runID uuid.UUID, snapshot *domain.WorkflowRun) error

	// Load returns the latest snapshot for runID or a NotFoundError.
	Load(ctx context.Context, runID uuid.UUID) (*domain.WorkflowRun, error)

	// Delete removes the checkpoint for runID or returns a NotFoundError.
	Delete(ctx context.Context, runID uuid.UUID) error

	// List returns snapshots matching filter, newest first.
	List(ctx context.Context, filter domain.RunFilter) ([]*domain.WorkflowRun, error)

	// DeleteTerminalBefore removes checkpoints of runs that completed before
	// cutoff and returns how many were removed.
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Compile-time interface verification.
var _ Store = (*MemoryStore)(nil)

// MemoryStore is an in-process Store. Snapshots are deep-copied on Save and
// Load so callers can keep mutating their run.
type MemoryStore struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*domain.WorkflowRun
}

// NewMemoryStore creates an empty in-process checkpoint store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{runs: make(map[uuid.UUID]*domain.WorkflowRun)}
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, runID uuid.UUID, snapshot *domain.WorkflowRun) error {
	if snapshot == nil {
		return domain.NewValidationError("snapshot", "must not be nil")
	}
	if snapshot.ID != runID {
		return domain.NewValidationError("snapshot", "run id does not match")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.runs[runID]; ok && snapshot.Version < existing.Version {
		return ErrStaleVersion
	}
	s.runs[runID] = snapshot.Clone()
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(_ context.Context, runID uuid.UUID) (*domain.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, domain.NewNotFoundError("checkpoint", runID.String())
	}
	return run.Clone(), nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, runID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[runID]; !ok {
		return domain.NewNotFoundError("checkpoint", runID.String())
	}
	delete(s.runs, runID)
	return nil
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, filter domain.RunFilter) ([]*domain.WorkflowRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.WorkflowRun, 0, len(s.runs))
	for _, run := range s.runs {
		if filter.Matches(run) {
			out = append(out, run.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DeleteTerminalBefore implements Store.
func (s *MemoryStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, run := range s.runs {
		if run.CompletedAt != nil && run.CompletedAt.Before(cutoff) {
			delete(s.runs, id)
			n++
		}
	}
	return n, nil
}
