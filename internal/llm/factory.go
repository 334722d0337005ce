package llm

import (
	"fmt"
	"time"
)

// FactoryConfig holds the parameters needed to create a Completer and Embedder.
// This is defined in the llm package to avoid importing the config package,
// keeping the llm package free of infrastructure dependencies.
type FactoryConfig struct {
	// Provider is the LLM provider name ("openai" or "anthropic").
	Provider string
	// Temperature is the LLM temperature setting.
	Temperature float64
	// MaxTokens bounds completion length.
	MaxTokens int
	// Timeout is the timeout for LLM API calls.
	Timeout time.Duration
	// MaxRetries is the maximum number of retries for failed calls.
	MaxRetries int
	// RateLimitRPS is the sustained request rate. Zero disables limiting.
	RateLimitRPS float64
	// RateLimitBurst is the limiter burst size.
	RateLimitBurst int
	// EmbeddingModel is the OpenAI embedding model.
	EmbeddingModel string
	// Dimension is the embedding vector length.
	Dimension int
	// OpenAI contains OpenAI-specific settings.
	OpenAI OpenAIConfig
	// Anthropic contains Anthropic-specific settings.
	Anthropic AnthropicConfig
}

// NewCompleter creates a Completer based on the configuration.
// Supports "openai" and "anthropic" providers. Returns an error for unsupported
// or empty provider values. When RateLimitRPS is positive the provider is
// wrapped in a RateLimitedCompleter.
func NewCompleter(cfg FactoryConfig) (Completer, error) {
	var c Completer
	switch cfg.Provider {
	case "openai":
		c = NewOpenAIProvider(cfg.OpenAI, cfg.Temperature, cfg.MaxTokens, cfg.Timeout, cfg.MaxRetries)
	case "anthropic":
		c = NewAnthropicProvider(cfg.Anthropic, cfg.Temperature, cfg.MaxTokens, cfg.Timeout, cfg.MaxRetries)
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}

	if cfg.RateLimitRPS > 0 {
		c = NewRateLimitedCompleter(c, NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst))
	}
	return c, nil
}

// NewEmbedder creates the OpenAI embedder. Anthropic has no embeddings API, so
// the OpenAI key is required regardless of the completion provider.
func NewEmbedder(cfg FactoryConfig) (Embedder, error) {
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("embeddings require an OpenAI API key")
	}
	return NewOpenAIEmbedder(OpenAIConfig{
		APIKey:  cfg.OpenAI.APIKey,
		Model:   cfg.EmbeddingModel,
		BaseURL: cfg.OpenAI.BaseURL,
	}, cfg.Dimension, cfg.Timeout, cfg.MaxRetries), nil
}
