package workers

import (
	"context"
	"fmt"
	"strings"

	"github.com/helixir/content-pipeline-service/internal/domain"
	"github.com/helixir/content-pipeline-service/internal/llm"
)

// Static adapters produce deterministic output without calling a language
// model. They back local runs and end-to-end tests.

// staticQualityScore is the score the static editor assigns.
const staticQualityScore = 0.5

// NewStaticResearchAdapter returns a research adapter that derives findings
// from the topic alone. Prior knowledge is still looked up when embedder and
// memory are set.
func NewStaticResearchAdapter(embedder llm.Embedder, memory Searcher, opts ResearchOptions) Adapter {
	return NewFuncAdapter(domain.RoleResearch, func(ctx context.Context, in Input) (Output, error) {
		topic := strings.TrimSpace(in.Topic)
		if topic == "" {
			return Output{}, domain.Fatal(fmt.Errorf("empty topic"))
		}
		prior, err := lookupPrior(ctx, embedder, memory, topic, opts)
		if err != nil {
			return Output{}, err
		}
		return EncodeOutput(domain.ResearchFindings{
			Summary: fmt.Sprintf("An overview of %s.", topic),
			Insights: []string{
				fmt.Sprintf("%s has a short history worth explaining.", topic),
				fmt.Sprintf("Practitioners apply %s in several settings.", topic),
				fmt.Sprintf("Open questions about %s remain.", topic),
			},
			PriorContext: prior,
		})
	})
}

// NewStaticWriterAdapter returns a writer adapter that assembles a draft from
// the research findings.
func NewStaticWriterAdapter() Adapter {
	return NewFuncAdapter(domain.RoleWriter, func(ctx context.Context, in Input) (Output, error) {
		research, err := decodePrior[domain.ResearchFindings](in, domain.StageResearching)
		if err != nil {
			return Output{}, err
		}
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}

		paragraphs := make([]string, 0, len(research.Insights)+1)
		paragraphs = append(paragraphs, research.Summary)
		paragraphs = append(paragraphs, research.Insights...)
		content := strings.Join(paragraphs, "\n\n")

		return EncodeOutput(domain.Draft{
			Title:     in.Topic,
			Content:   content,
			WordCount: domain.CountWords(content),
		})
	})
}

// NewStaticEditorAdapter returns an editor adapter that normalizes whitespace
// within paragraphs and assigns a fixed quality score.
func NewStaticEditorAdapter() Adapter {
	return NewFuncAdapter(domain.RoleEditor, func(ctx context.Context, in Input) (Output, error) {
		draft, err := decodePrior[domain.Draft](in, domain.StageWriting)
		if err != nil {
			return Output{}, err
		}
		if err := ctx.Err(); err != nil {
			return Output{}, err
		}

		var cleaned []string
		for _, p := range strings.Split(draft.Content, "\n\n") {
			if p = domain.NormalizeContent(p); p != "" {
				cleaned = append(cleaned, p)
			}
		}
		content := strings.Join(cleaned, "\n\n")

		return EncodeOutput(domain.EditedContent{
			Content:      content,
			QualityScore: staticQualityScore,
			Changes:      []string{"normalized whitespace"},
			WordCount:    domain.CountWords(content),
		})
	})
}
