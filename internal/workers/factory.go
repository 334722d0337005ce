package workers

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/helixir/content-pipeline-service/internal/config"
	"github.com/helixir/content-pipeline-service/internal/llm"
	"github.com/helixir/content-pipeline-service/internal/observability"
)

// Memory is the content store surface the adapters use.
type Memory interface {
	Searcher
	ContentWriter
}

// Deps carries the collaborators needed to build a registry.
type Deps struct {
	// Provider selects llm or static adapters.
	Provider string
	// Completer serves the LLM adapters. Unused in static mode.
	Completer llm.Completer
	// Embedder embeds topics and committed content.
	Embedder llm.Embedder
	// Memory is the long-term content store.
	Memory Memory
	// Research configures prior-knowledge retrieval.
	Research ResearchOptions
	Metrics  *observability.Metrics
	Logger   zerolog.Logger
}

// BuildRegistry assembles the adapter registry for the configured provider.
func BuildRegistry(d Deps) (*Registry, error) {
	if d.Embedder == nil {
		return nil, errors.New("workers: embedder is required")
	}
	if d.Memory == nil {
		return nil, errors.New("workers: memory store is required")
	}

	writeback := NewMemoryWritebackAdapter(d.Embedder, d.Memory, d.Metrics, d.Logger)

	switch d.Provider {
	case config.WorkerProviderLLM, "":
		if d.Completer == nil {
			return nil, errors.New("workers: completer is required for llm provider")
		}
		return NewRegistry(
			NewResearchAdapter(d.Completer, d.Embedder, d.Memory, d.Research, d.Metrics, d.Logger),
			NewWriterAdapter(d.Completer, d.Metrics, d.Logger),
			NewEditorAdapter(d.Completer, d.Metrics, d.Logger),
			writeback,
		)
	case config.WorkerProviderStatic:
		return NewRegistry(
			NewStaticResearchAdapter(d.Embedder, d.Memory, d.Research),
			NewStaticWriterAdapter(),
			NewStaticEditorAdapter(),
			writeback,
		)
	default:
		return nil, fmt.Errorf("workers: unsupported provider %q", d.Provider)
	}
}
