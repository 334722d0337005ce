package memory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/observability"
)

// indexOverfetch widens index queries so records tied at the cut-off still
// reach the exact re-ranking step.
const indexOverfetch = 2

// IndexHit is a candidate returned by a VectorIndex.
type IndexHit struct {
	ContentHash string
	Score       float64
}

// VectorIndex is an optional approximate nearest-neighbor index. The Store
// treats it as a candidate source only: scores are recomputed from the stored
// embeddings before ranking.
type VectorIndex interface {
	Upsert(ctx context.Context, hash string, embedding []float32) error
	Search(ctx context.Context, embedding []float32, limit int, minScore float64) ([]IndexHit, error)
	Delete(ctx context.Context, hashes ...string) error
}

// Options configures a Store.
type Options struct {
	// Dimension is the fixed embedding length every record must have.
	Dimension int
	// Index is an optional vector index kept in sync with the backend.
	Index VectorIndex
	// Metrics records store activity. May be nil.
	Metrics *observability.Metrics
	// Logger receives store diagnostics.
	Logger zerolog.Logger
	// Now overrides the clock. Defaults to time.Now.
	Now func() time.Time
}

// WriteResult describes the outcome of a Write.
type WriteResult struct {
	ContentHash string
	Created     bool
}

// Store is the content-addressed memory store.
type Store struct {
	backend   Backend
	index     VectorIndex
	dimension int
	locks     *keyedMutex
	metrics   *observability.Metrics
	logger    zerolog.Logger
	now       func() time.Time
}

// NewStore creates a Store over backend.
func NewStore(backend Backend, opts Options) (*Store, error) {
	if backend == nil {
		return nil, errors.New("memory: backend is required")
	}
	if opts.Dimension <= 0 {
		return nil, fmt.Errorf("memory: dimension must be positive, got %d", opts.Dimension)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		backend:   backend,
		index:     opts.Index,
		dimension: opts.Dimension,
		locks:     newKeyedMutex(),
		metrics:   opts.Metrics,
		logger:    observability.WithComponent(opts.Logger, "memory"),
		now:       now,
	}, nil
}

// Dimension returns the configured embedding length.
func (s *Store) Dimension() int {
	return s.dimension
}

// Put stores text with its embedding and metadata and returns the content
// hash. Putting content whose hash already exists keeps the original text and
// embedding and replaces the metadata.
func (s *Store) Put(ctx context.Context, text string, embedding []float32, metadata map[string]any) (string, error) {
	res, err := s.Write(ctx, text, embedding, metadata)
	if err != nil {
		return "", err
	}
	return res.ContentHash, nil
}

// Write is Put that also reports whether a new record was created.
func (s *Store) Write(ctx context.Context, text string, embedding []float32, metadata map[string]any) (WriteResult, error) {
	if domain.NormalizeContent(text) == "" {
		return WriteResult{}, domain.NewValidationError("text", "must not be empty")
	}
	if err := s.checkDimension(embedding); err != nil {
		return WriteResult{}, err
	}

	hash := domain.ComputeContentHash(text)
	unlock := s.locks.lock(hash)
	defer unlock()

	now := s.now().UTC()
	rec := &domain.MemoryRecord{
		ContentHash: hash,
		Text:        text,
		Embedding:   embedding,
		Metadata:    metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.backend.Upsert(ctx, rec)
	if err != nil {
		return WriteResult{}, err
	}

	// The index write is idempotent and repeated on refresh so a retry after
	// a failed index write converges.
	if s.index != nil {
		if err := s.index.Upsert(ctx, hash, embedding); err != nil {
			return WriteResult{}, domain.NewStorageError("vector index", "upsert", err)
		}
	}

	result := "refreshed"
	if created {
		result = "created"
	}
	s.metrics.RecordMemoryPut(result)
	s.logger.Debug().
		Str("content_hash", hash).
		Str("result", result).
		Msg("memory record written")

	return WriteResult{ContentHash: hash, Created: created}, nil
}

// Get returns the record for hash or a NotFoundError.
func (s *Store) Get(ctx context.Context, hash string) (*domain.MemoryRecord, error) {
	return s.backend.Get(ctx, hash)
}

// SearchSimilar returns up to k records whose cosine similarity to embedding
// is at least minScore, ordered by descending score. Equal scores are ordered
// newest first, then by hash.
func (s *Store) SearchSimilar(ctx context.Context, embedding []float32, k int, minScore float64) ([]domain.ScoredRecord, error) {
	if err := s.checkDimension(embedding); err != nil {
		return nil, err
	}
	if k <= 0 {
		return []domain.ScoredRecord{}, nil
	}

	start := time.Now()
	defer func() {
		s.metrics.RecordMemorySearch(time.Since(start).Seconds())
	}()

	candidates, err := s.candidates(ctx, embedding, k, minScore)
	if err != nil {
		return nil, err
	}

	scored := make([]domain.ScoredRecord, 0, len(candidates))
	for _, rec := range candidates {
		score := CosineSimilarity(embedding, rec.Embedding)
		// Written negated so NaN scores are dropped too.
		if !(score >= minScore) {
			continue
		}
		scored = append(scored, domain.ScoredRecord{Record: rec, Score: score})
	}

	sortScored(scored)
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored, nil
}

func (s *Store) candidates(ctx context.Context, embedding []float32, k int, minScore float64) ([]*domain.MemoryRecord, error) {
	if s.index == nil {
		return s.backend.List(ctx)
	}

	hits, err := s.index.Search(ctx, embedding, k*indexOverfetch, minScore)
	if err != nil {
		s.logger.Warn().Err(err).Msg("vector index search failed, falling back to full scan")
		return s.backend.List(ctx)
	}
	hashes := make([]string, 0, len(hits))
	for _, h := range hits {
		hashes = append(hashes, h.ContentHash)
	}
	return s.backend.GetMany(ctx, hashes)
}

// Delete removes the record for hash.
func (s *Store) Delete(ctx context.Context, hash string) error {
	unlock := s.locks.lock(hash)
	defer unlock()

	if err := s.backend.Delete(ctx, hash); err != nil {
		return err
	}
	if s.index != nil {
		if err := s.index.Delete(ctx, hash); err != nil {
			s.logger.Warn().Err(err).Str("content_hash", hash).Msg("vector index delete failed")
		}
	}
	return nil
}

// Stats summarizes the store.
func (s *Store) Stats(ctx context.Context) (domain.MemoryStats, error) {
	stats, err := s.backend.Stats(ctx)
	if err != nil {
		return domain.MemoryStats{}, err
	}
	stats.Dimension = s.dimension
	return stats, nil
}

// PruneBelowImportance deletes records whose metadata importance is below min
// and returns how many were removed. Records without an importance count as 0.
func (s *Store) PruneBelowImportance(ctx context.Context, min float64) (int, error) {
	removed, err := s.backend.DeleteBelowImportance(ctx, min)
	if err != nil {
		return 0, err
	}
	if s.index != nil && len(removed) > 0 {
		if err := s.index.Delete(ctx, removed...); err != nil {
			s.logger.Warn().Err(err).Int("count", len(removed)).Msg("vector index prune failed")
		}
	}
	if len(removed) > 0 {
		s.logger.Info().
			Int("count", len(removed)).
			Float64("min_importance", min).
			Msg("pruned memory records")
	}
	return len(removed), nil
}

func (s *Store) checkDimension(embedding []float32) error {
	if len(embedding) != s.dimension {
		return fmt.Errorf("%w: got %d, want %d", domain.ErrDimensionMismatch, len(embedding), s.dimension)
	}
	return nil
}

// CosineSimilarity returns the cosine of the angle between a and b. Vectors of
// different length or with zero norm have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func sortScored(scored []domain.ScoredRecord) {
	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Record.CreatedAt.Equal(b.Record.CreatedAt) {
			return a.Record.CreatedAt.After(b.Record.CreatedAt)
		}
		return a.Record.ContentHash < b.Record.ContentHash
	})
}
