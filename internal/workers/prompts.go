package workers

import (
	"fmt"
	"strings"

	"github.com/helixir/content-pipeline-service/internal/domain"
)

const researchSystemPrompt = `You are a research analyst preparing material for a writer.
Return a JSON object with the fields:
  "summary":  a concise paragraph summarizing the topic,
  "insights": an array of 3 to 7 short, specific findings.
Do not invent citations.`

const writerSystemPrompt = `You are a professional writer.
Return a JSON object with the fields:
  "title":   the article title,
  "content": the full article body as plain text with paragraphs separated by blank lines.`

const editorSystemPrompt = `You are a meticulous editor.
Improve clarity, structure and correctness without changing the meaning.
Return a JSON object with the fields:
  "content":       the edited article,
  "quality_score": a number between 0 and 1 rating the edited article,
  "changes":       an array of short descriptions of the edits you made.`

func researchPrompt(topic string, prior []domain.PriorKnowledge) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	if len(prior) > 0 {
		b.WriteString("\nPreviously published material on related topics (avoid repeating it):\n")
		for _, p := range prior {
			fmt.Fprintf(&b, "- (similarity %.2f) %s\n", p.Score, p.Excerpt)
		}
	}
	b.WriteString("\nResearch the topic and report your findings.")
	return b.String()
}

func writerPrompt(topic string, cfg domain.RunConfig, research domain.ResearchFindings) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n", topic)
	fmt.Fprintf(&b, "Style: %s\n", cfg.WritingStyle)
	fmt.Fprintf(&b, "Target length: about %d words\n\n", cfg.TargetWordCount)
	fmt.Fprintf(&b, "Research summary:\n%s\n", research.Summary)
	if len(research.Insights) > 0 {
		b.WriteString("\nKey insights:\n")
		for _, in := range research.Insights {
			fmt.Fprintf(&b, "- %s\n", in)
		}
	}
	b.WriteString("\nWrite the article.")
	return b.String()
}

func editorPrompt(cfg domain.RunConfig, draft domain.Draft) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Style: %s\n", cfg.WritingStyle)
	fmt.Fprintf(&b, "Target length: about %d words\n\n", cfg.TargetWordCount)
	fmt.Fprintf(&b, "Title: %s\n\n%s\n", draft.Title, draft.Content)
	return b.String()
}

// excerpt shortens text to at most n runes on a word boundary.
func excerpt(text string, n int) string {
	text = domain.NormalizeContent(text)
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	cut := string(runes[:n])
	if i := strings.LastIndex(cut, " "); i > n/2 {
		cut = cut[:i]
	}
	return cut + "…"
}
