package workers

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/llm"
	"github.com/helixir/content-pipeline-service/internal/memory"
	"github.com/helixir/content-pipeline-service/internal/observability"
)

// ContentWriter stores content in long-term memory.
type ContentWriter interface {
	Write(ctx context.Context, text string, embedding []float32, metadata map[string]any) (memory.WriteResult, error)
}

// MemoryWritebackAdapter embeds the edited article and commits it to the
// content store. Committing the same article twice is harmless: the store
// deduplicates by content hash and the payload reports Duplicate.
type MemoryWritebackAdapter struct {
	embedder llm.Embedder
	store    ContentWriter
	metrics  *observability.Metrics
	logger   zerolog.Logger
}

// NewMemoryWritebackAdapter creates the memory writeback adapter.
func NewMemoryWritebackAdapter(embedder llm.Embedder, store ContentWriter, metrics *observability.Metrics, logger zerolog.Logger) *MemoryWritebackAdapter {
	return &MemoryWritebackAdapter{
		embedder: embedder,
		store:    store,
		metrics:  metrics,
		logger:   observability.WithComponent(logger, "memory-writeback"),
	}
}

// Role implements Adapter.
func (a *MemoryWritebackAdapter) Role() domain.WorkerRole { return domain.RoleMemoryWriteback }

// Execute implements Adapter.
func (a *MemoryWritebackAdapter) Execute(ctx context.Context, in Input) (Output, error) {
	edited, err := decodePrior[domain.EditedContent](in, domain.StageEditing)
	if err != nil {
		return Output{}, err
	}
	if domain.NormalizeContent(edited.Content) == "" {
		return Output{}, domain.Fatal(fmt.Errorf("edited content is empty"))
	}

	vectors, err := a.embedder.Embed(ctx, []string{edited.Content})
	if err != nil {
		a.metrics.RecordLLMRequestFailed("embed", "embedder", errorType(err))
		return Output{}, fmt.Errorf("embed content: %w", err)
	}
	if len(vectors) != 1 {
		return Output{}, fmt.Errorf("embed content: got %d vectors", len(vectors))
	}

	res, err := a.store.Write(ctx, edited.Content, vectors[0], map[string]any{
		domain.MetaTopic:      in.Topic,
		domain.MetaStage:      string(domain.StageEditing),
		domain.MetaImportance: edited.QualityScore,
		domain.MetaRunID:      in.RunID.String(),
	})
	if err != nil {
		return Output{}, fmt.Errorf("commit content: %w", err)
	}

	a.logger.Info().
		Str("run_id", in.RunID.String()).
		Str("content_hash", res.ContentHash).
		Bool("duplicate", !res.Created).
		Msg("content committed to memory")

	return EncodeOutput(domain.MemoryCommit{
		ContentHash: res.ContentHash,
		Duplicate:   !res.Created,
	})
}
