// Package memory implements the content-addressed long-term store that
// pipeline runs read prior knowledge from and commit finished content to.
//
// Records are keyed by the SHA-256 of their normalized text, so committing the
// same content twice yields a single record. Similarity search ranks records by
// cosine similarity against a query embedding.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/helixir/content-pipeline-service/internal/domain"
)

// Backend persists memory records. Implementations must be safe for
// concurrent use. The Store layers hashing, dimension checks and per-hash
// write serialization on top of a Backend.
type Backend interface {
	// Upsert inserts rec, or, when a record with the same hash exists, replaces
	// its metadata and UpdatedAt while keeping text, embedding and CreatedAt.
	// It reports whether a new record was created.
	Upsert(ctx context.Context, rec *domain.MemoryRecord) (bool, error)

	// Get returns the record with the given hash or a NotFoundError.
	Get(ctx context.Context, hash string) (*domain.MemoryRecord, error)

	// GetMany returns the records that exist among hashes, in no particular order.
	GetMany(ctx context.Context, hashes []string) ([]*domain.MemoryRecord, error)

	// List returns every record.
	List(ctx context.Context) ([]*domain.MemoryRecord, error)

	// Delete removes the record with the given hash or returns a NotFoundError.
	Delete(ctx context.Context, hash string) error

	// Stats returns the record count and the creation time range.
	Stats(ctx context.Context) (domain.MemoryStats, error)

	// DeleteBelowImportance removes records whose importance is below min and
	// returns their hashes.
	DeleteBelowImportance(ctx context.Context, min float64) ([]string, error)
}

// Compile-time check that MemoryBackend implements Backend.
var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps records in process memory. Records are cloned on the way
// in and out so callers never share slices or maps with the store.
type MemoryBackend struct {
	mu      sync.RWMutex
	records map[string]*domain.MemoryRecord
}

// NewMemoryBackend creates an empty in-process backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string]*domain.MemoryRecord)}
}

// Upsert implements Backend.
func (b *MemoryBackend) Upsert(_ context.Context, rec *domain.MemoryRecord) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	existing, ok := b.records[rec.ContentHash]
	if !ok {
		b.records[rec.ContentHash] = rec.Clone()
		return true, nil
	}

	refreshed := rec.Clone()
	existing.Metadata = refreshed.Metadata
	existing.UpdatedAt = rec.UpdatedAt
	return false, nil
}

// Get implements Backend.
func (b *MemoryBackend) Get(_ context.Context, hash string) (*domain.MemoryRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	rec, ok := b.records[hash]
	if !ok {
		return nil, domain.NewNotFoundError("memory record", hash)
	}
	return rec.Clone(), nil
}

// GetMany implements Backend.
func (b *MemoryBackend) GetMany(_ context.Context, hashes []string) ([]*domain.MemoryRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*domain.MemoryRecord, 0, len(hashes))
	for _, h := range hashes {
		if rec, ok := b.records[h]; ok {
			out = append(out, rec.Clone())
		}
	}
	return out, nil
}

// List implements Backend.
func (b *MemoryBackend) List(_ context.Context) ([]*domain.MemoryRecord, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*domain.MemoryRecord, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Delete implements Backend.
func (b *MemoryBackend) Delete(_ context.Context, hash string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.records[hash]; !ok {
		return domain.NewNotFoundError("memory record", hash)
	}
	delete(b.records, hash)
	return nil
}

// Stats implements Backend.
func (b *MemoryBackend) Stats(_ context.Context) (domain.MemoryStats, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	stats := domain.MemoryStats{Records: len(b.records)}
	for _, rec := range b.records {
		created := rec.CreatedAt
		if stats.OldestAt == nil || created.Before(*stats.OldestAt) {
			stats.OldestAt = &created
		}
		if stats.NewestAt == nil || created.After(*stats.NewestAt) {
			c := created
			stats.NewestAt = &c
		}
	}
	return stats, nil
}

// DeleteBelowImportance implements Backend.
func (b *MemoryBackend) DeleteBelowImportance(_ context.Context, min float64) ([]string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var removed []string
	for hash, rec := range b.records {
		if rec.Importance() < min {
			delete(b.records, hash)
			removed = append(removed, hash)
		}
	}
	sort.Strings(removed)
	return removed, nil
}
