package llm

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"
)

const defaultEmbeddingModel = "text-embedding-3-small"

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Model string          `json:"model"`
	Usage chatUsage       `json:"usage"`
}

type embeddingData struct {
	Index     int       `json:"index"`
	Embedding []float32 `json:"embedding"`
}

// OpenAIEmbedder is an Embedder backed by the embeddings endpoint of an
// OpenAI-compatible API.
type OpenAIEmbedder struct {
	endpoint
	model     string
	dimension int
}

// NewOpenAIEmbedder creates an embedder producing vectors of the given dimension.
// cfg.Model selects the embedding model; the chat model is not used.
func NewOpenAIEmbedder(cfg OpenAIConfig, dimension int, timeout time.Duration, maxRetries int) *OpenAIEmbedder {
	e := &OpenAIEmbedder{
		endpoint:  newOpenAIEndpoint(cfg, timeout, maxRetries),
		model:     cfg.Model,
		dimension: dimension,
	}
	if e.model == "" {
		e.model = defaultEmbeddingModel
	}
	return e
}

// Dimension returns the configured vector length.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

// Embed returns one embedding per text. Vectors whose length differs from the
// configured dimension are rejected.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	req := embeddingRequest{Model: e.model, Input: texts, Dimensions: e.dimension}
	var resp embeddingResponse
	if err := e.call(ctx, "/embeddings", req, &resp); err != nil {
		return nil, err
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai: expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	sort.Slice(resp.Data, func(i, j int) bool { return resp.Data[i].Index < resp.Data[j].Index })
	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		if e.dimension > 0 && len(d.Embedding) != e.dimension {
			return nil, fmt.Errorf("openai: embedding %d has dimension %d, want %d", i, len(d.Embedding), e.dimension)
		}
		out[i] = d.Embedding
	}
	return out, nil
}

// HashEmbedder produces deterministic bag-of-words vectors without calling a
// provider. Each lower-cased word is hashed into one of Dimension buckets and
// the result is L2-normalized, so texts sharing vocabulary score high under
// cosine similarity.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a HashEmbedder. Dimension must be positive.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = 1
	}
	return &HashEmbedder{dimension: dimension}
}

// Dimension returns the vector length.
func (h *HashEmbedder) Dimension() int {
	return h.dimension
}

// Embed hashes each text into a vector. It never fails unless ctx is done.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h *HashEmbedder) vector(text string) []float32 {
	vec := make([]float32, h.dimension)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	for _, w := range words {
		f := fnv.New32a()
		_, _ = f.Write([]byte(w))
		vec[f.Sum32()%uint32(h.dimension)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
