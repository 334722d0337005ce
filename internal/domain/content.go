package domain

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// whitespaceRegex matches one or more whitespace characters (spaces, tabs, newlines).
var whitespaceRegex = regexp.MustCompile(`\s+`)

// NormalizeContent normalizes text before fingerprinting by:
// - Trimming leading/trailing whitespace
// - Collapsing runs of whitespace into a single space
//
// Case is preserved; two texts that differ only in case are different content.
func NormalizeContent(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	return whitespaceRegex.ReplaceAllString(s, " ")
}

// ComputeContentHash returns the hex SHA-256 of the normalized text.
func ComputeContentHash(text string) string {
	sum := sha256.Sum256([]byte(NormalizeContent(text)))
	return fmt.Sprintf("%x", sum)
}

// Well-known metadata keys.
const (
	MetaTopic      = "topic"
	MetaStage      = "stage"
	MetaImportance = "importance"
	MetaRunID      = "run_id"
)

// MemoryRecord is a content-addressed text blob with its embedding.
// ContentHash is the key: a record is never duplicated for the same hash.
type MemoryRecord struct {
	ContentHash string         `json:"content_hash"`
	Text        string         `json:"text"`
	Embedding   []float32      `json:"embedding"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// Importance returns the importance score stored in metadata, or 0.
func (r *MemoryRecord) Importance() float64 {
	switch v := r.Metadata[MetaImportance].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}

// Clone returns a deep copy of the record.
func (r *MemoryRecord) Clone() *MemoryRecord {
	if r == nil {
		return nil
	}
	out := *r
	out.Embedding = append([]float32(nil), r.Embedding...)
	if r.Metadata != nil {
		out.Metadata = make(map[string]any, len(r.Metadata))
		for k, v := range r.Metadata {
			out.Metadata[k] = v
		}
	}
	return &out
}

// ScoredRecord pairs a record with its cosine similarity to a query.
type ScoredRecord struct {
	Record *MemoryRecord `json:"record"`
	Score  float64       `json:"score"`
}

// MemoryStats summarizes the content store.
type MemoryStats struct {
	Records   int        `json:"records"`
	Dimension int        `json:"dimension"`
	OldestAt  *time.Time `json:"oldest_at,omitempty"`
	NewestAt  *time.Time `json:"newest_at,omitempty"`
}

// PriorKnowledge is a stored memory surfaced to the research stage.
type PriorKnowledge struct {
	ContentHash string  `json:"content_hash"`
	Topic       string  `json:"topic,omitempty"`
	Excerpt     string  `json:"excerpt"`
	Score       float64 `json:"score"`
}

// ResearchFindings is the payload of a successful Researching stage.
type ResearchFindings struct {
	Summary      string           `json:"summary"`
	Insights     []string         `json:"insights"`
	PriorContext []PriorKnowledge `json:"prior_context,omitempty"`
}

// Draft is the payload of a successful Writing stage.
type Draft struct {
	Title     string `json:"title"`
	Content   string `json:"content"`
	WordCount int    `json:"word_count"`
}

// EditedContent is the payload of a successful Editing stage.
type EditedContent struct {
	Content      string   `json:"content"`
	QualityScore float64  `json:"quality_score"`
	Changes      []string `json:"changes,omitempty"`
	WordCount    int      `json:"word_count"`
}

// MemoryCommit is the payload of a successful MemoryCommit stage.
type MemoryCommit struct {
	ContentHash string `json:"content_hash"`
	Duplicate   bool   `json:"duplicate"`
}

// CountWords returns the number of whitespace-separated words in s.
func CountWords(s string) int {
	return len(strings.Fields(s))
}
