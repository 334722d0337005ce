package workers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/llm"
	"github.com/helixir/content-pipeline-service/internal/observability"
)

// priorExcerptLength bounds how much of a stored record is shown to the researcher.
const priorExcerptLength = 400

// Searcher finds stored content similar to an embedding.
type Searcher interface {
	SearchSimilar(ctx context.Context, embedding []float32, k int, minScore float64) ([]domain.ScoredRecord, error)
}

// caller wraps a Completer with metrics and response decoding.
type caller struct {
	completer llm.Completer
	metrics   *observability.Metrics
	logger    zerolog.Logger
}

// completeJSON sends a JSON-mode completion and decodes the response into out.
// A malformed response is reported as transient: another sample may parse.
func (c *caller) completeJSON(ctx context.Context, operation, system, prompt string, out any) error {
	start := time.Now()
	result, err := c.completer.Complete(ctx, llm.CompletionRequest{
		System: system,
		Prompt: prompt,
		JSON:   true,
	})
	duration := time.Since(start).Seconds()
	logger := observability.FromContext(ctx, c.logger)
	if err != nil {
		c.metrics.RecordLLMRequestFailed(operation, c.completer.Model(), errorType(err))
		logger.Warn().Err(err).
			Str("operation", operation).
			Float64("duration", duration).
			Msg("llm request failed")
		return fmt.Errorf("%s: %w", operation, err)
	}

	c.metrics.RecordLLMRequest(operation, result.Model, duration, result.InputTokens, result.OutputTokens)
	logger.Debug().
		Str("operation", operation).
		Str("model", result.Model).
		Int("input_tokens", result.InputTokens).
		Int("output_tokens", result.OutputTokens).
		Float64("duration", duration).
		Msg("llm request completed")

	if err := decodeJSONObject(result.Text, out); err != nil {
		return fmt.Errorf("%w: %s: malformed response: %v", domain.ErrTransientStageFailure, operation, err)
	}
	return nil
}

// decodeJSONObject extracts the outermost JSON object from text, tolerating
// markdown code fences and surrounding prose.
func decodeJSONObject(text string, out any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return errors.New("no JSON object in response")
	}
	return json.Unmarshal([]byte(text[start:end+1]), out)
}

func errorType(err error) string {
	var apiErr *llm.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Type != "" {
			return apiErr.Type
		}
		return fmt.Sprintf("http_%d", apiErr.StatusCode)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	return "unknown"
}

// ResearchOptions configures prior-knowledge retrieval.
type ResearchOptions struct {
	// SearchLimit is the number of stored records surfaced to the researcher.
	SearchLimit int
	// MinScore is the similarity threshold for prior knowledge.
	MinScore float64
}

// ResearchAdapter gathers findings for the topic, informed by similar content
// already committed to memory.
type ResearchAdapter struct {
	caller
	embedder llm.Embedder
	memory   Searcher
	opts     ResearchOptions
}

// NewResearchAdapter creates the research adapter. embedder and memory may be
// nil, in which case no prior knowledge is consulted.
func NewResearchAdapter(completer llm.Completer, embedder llm.Embedder, memory Searcher, opts ResearchOptions, metrics *observability.Metrics, logger zerolog.Logger) *ResearchAdapter {
	return &ResearchAdapter{
		caller:   caller{completer: completer, metrics: metrics, logger: observability.WithComponent(logger, "research")},
		embedder: embedder,
		memory:   memory,
		opts:     opts,
	}
}

// Role implements Adapter.
func (a *ResearchAdapter) Role() domain.WorkerRole { return domain.RoleResearch }

// Execute implements Adapter.
func (a *ResearchAdapter) Execute(ctx context.Context, in Input) (Output, error) {
	if strings.TrimSpace(in.Topic) == "" {
		return Output{}, domain.Fatal(errors.New("empty topic"))
	}

	prior, err := lookupPrior(ctx, a.embedder, a.memory, in.Topic, a.opts)
	if err != nil {
		return Output{}, err
	}

	var resp struct {
		Summary  string   `json:"summary"`
		Insights []string `json:"insights"`
	}
	if err := a.completeJSON(ctx, "research", researchSystemPrompt, researchPrompt(in.Topic, prior), &resp); err != nil {
		return Output{}, err
	}
	if strings.TrimSpace(resp.Summary) == "" {
		return Output{}, fmt.Errorf("%w: research returned an empty summary", domain.ErrTransientStageFailure)
	}

	return EncodeOutput(domain.ResearchFindings{
		Summary:      resp.Summary,
		Insights:     resp.Insights,
		PriorContext: prior,
	})
}

// lookupPrior embeds the topic and searches memory for related content.
func lookupPrior(ctx context.Context, embedder llm.Embedder, memory Searcher, topic string, opts ResearchOptions) ([]domain.PriorKnowledge, error) {
	if embedder == nil || memory == nil || opts.SearchLimit <= 0 {
		return nil, nil
	}

	vectors, err := embedder.Embed(ctx, []string{topic})
	if err != nil {
		return nil, fmt.Errorf("embed topic: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed topic: got %d vectors", len(vectors))
	}

	matches, err := memory.SearchSimilar(ctx, vectors[0], opts.SearchLimit, opts.MinScore)
	if err != nil {
		return nil, fmt.Errorf("search prior knowledge: %w", err)
	}

	prior := make([]domain.PriorKnowledge, 0, len(matches))
	for _, m := range matches {
		topicMeta, _ := m.Record.Metadata[domain.MetaTopic].(string)
		prior = append(prior, domain.PriorKnowledge{
			ContentHash: m.Record.ContentHash,
			Topic:       topicMeta,
			Excerpt:     excerpt(m.Record.Text, priorExcerptLength),
			Score:       m.Score,
		})
	}
	return prior, nil
}

// WriterAdapter turns research findings into a draft.
type WriterAdapter struct {
	caller
}

// NewWriterAdapter creates the writer adapter.
func NewWriterAdapter(completer llm.Completer, metrics *observability.Metrics, logger zerolog.Logger) *WriterAdapter {
	return &WriterAdapter{
		caller: caller{completer: completer, metrics: metrics, logger: observability.WithComponent(logger, "writer")},
	}
}

// Role implements Adapter.
func (a *WriterAdapter) Role() domain.WorkerRole { return domain.RoleWriter }

// Execute implements Adapter.
func (a *WriterAdapter) Execute(ctx context.Context, in Input) (Output, error) {
	research, err := decodePrior[domain.ResearchFindings](in, domain.StageResearching)
	if err != nil {
		return Output{}, err
	}

	var resp struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}
	if err := a.completeJSON(ctx, "write", writerSystemPrompt, writerPrompt(in.Topic, in.Config, research), &resp); err != nil {
		return Output{}, err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return Output{}, fmt.Errorf("%w: writer returned an empty draft", domain.ErrTransientStageFailure)
	}

	title := strings.TrimSpace(resp.Title)
	if title == "" {
		title = in.Topic
	}
	return EncodeOutput(domain.Draft{
		Title:     title,
		Content:   resp.Content,
		WordCount: domain.CountWords(resp.Content),
	})
}

// EditorAdapter polishes a draft and scores its quality.
type EditorAdapter struct {
	caller
}

// NewEditorAdapter creates the editor adapter.
func NewEditorAdapter(completer llm.Completer, metrics *observability.Metrics, logger zerolog.Logger) *EditorAdapter {
	return &EditorAdapter{
		caller: caller{completer: completer, metrics: metrics, logger: observability.WithComponent(logger, "editor")},
	}
}

// Role implements Adapter.
func (a *EditorAdapter) Role() domain.WorkerRole { return domain.RoleEditor }

// Execute implements Adapter.
func (a *EditorAdapter) Execute(ctx context.Context, in Input) (Output, error) {
	draft, err := decodePrior[domain.Draft](in, domain.StageWriting)
	if err != nil {
		return Output{}, err
	}

	var resp struct {
		Content      string   `json:"content"`
		QualityScore float64  `json:"quality_score"`
		Changes      []string `json:"changes"`
	}
	if err := a.completeJSON(ctx, "edit", editorSystemPrompt, editorPrompt(in.Config, draft), &resp); err != nil {
		return Output{}, err
	}
	if strings.TrimSpace(resp.Content) == "" {
		return Output{}, fmt.Errorf("%w: editor returned empty content", domain.ErrTransientStageFailure)
	}

	return EncodeOutput(domain.EditedContent{
		Content:      resp.Content,
		QualityScore: clamp01(resp.QualityScore),
		Changes:      resp.Changes,
		WordCount:    domain.CountWords(resp.Content),
	})
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
