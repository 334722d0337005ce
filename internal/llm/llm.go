// Package llm provides the language-model clients used by the pipeline's
// worker adapters.
//
// Two capabilities are exposed behind small interfaces so that workers can be
// tested against fakes and swapped between providers:
//
//   - Completer produces text (or JSON) completions for research, writing and
//     editing prompts. OpenAI and Anthropic implementations talk to the
//     providers over plain HTTP.
//   - Embedder turns text into fixed-length vectors for the content store.
//     OpenAIEmbedder calls the embeddings API; HashEmbedder is a local,
//     deterministic fallback used by the static worker mode.
//
// Example usage:
//
//	completer, err := llm.NewCompleter(llm.FactoryConfig{Provider: "openai", ...})
//	result, err := completer.Complete(ctx, llm.CompletionRequest{
//		System: "You are a research assistant.",
//		Prompt: "Summarize recent work on CRISPR base editing.",
//		JSON:   true,
//	})
package llm

import "context"

// CompletionRequest is a single-turn completion call.
type CompletionRequest struct {
	// System is the system prompt.
	System string

	// Prompt is the user message.
	Prompt string

	// MaxTokens bounds the response length. Zero uses the provider default.
	MaxTokens int

	// JSON asks the provider for a JSON object response where supported.
	JSON bool
}

// CompletionResult is the provider's response to a CompletionRequest.
type CompletionResult struct {
	// Text is the completion text.
	Text string

	// Model is the model that served the request.
	Model string

	// InputTokens is the number of input tokens used.
	InputTokens int

	// OutputTokens is the number of output tokens used.
	OutputTokens int
}

// Completer is implemented by chat-completion providers.
type Completer interface {
	// Complete sends req to the provider. Implementations must respect ctx
	// cancellation and return *APIError for provider-side failures.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)

	// Provider returns the name of the LLM provider (e.g., "openai", "anthropic").
	Provider() string

	// Model returns the model identifier being used.
	Model() string
}

// Embedder turns text into embedding vectors of a fixed dimension.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the length of every vector returned by Embed.
	Dimension() int
}
