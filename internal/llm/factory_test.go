package llm

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCompleter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		cfg          FactoryConfig
		wantProvider string
		wantModel    string
		wantLimited  bool
		wantErr      string
	}{
		{
			name: "openai",
			cfg: FactoryConfig{
				Provider: "openai",
				Timeout:  30 * time.Second,
				OpenAI:   OpenAIConfig{APIKey: "sk-test-key", Model: "gpt-4o"},
			},
			wantProvider: "openai",
			wantModel:    "gpt-4o",
		},
		{
			name: "anthropic with rate limit",
			cfg: FactoryConfig{
				Provider:       "anthropic",
				RateLimitRPS:   2,
				RateLimitBurst: 2,
				Anthropic:      AnthropicConfig{APIKey: "sk-ant", Model: "claude-3-5-haiku-latest"},
			},
			wantProvider: "anthropic",
			wantModel:    "claude-3-5-haiku-latest",
			wantLimited:  true,
		},
		{
			name:    "unsupported provider",
			cfg:     FactoryConfig{Provider: "cohere"},
			wantErr: `unsupported LLM provider: "cohere"`,
		},
		{
			name:    "empty provider",
			cfg:     FactoryConfig{},
			wantErr: `unsupported LLM provider: ""`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := NewCompleter(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.EqualError(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantProvider, c.Provider())
			assert.Equal(t, tt.wantModel, c.Model())
			_, limited := c.(*RateLimitedCompleter)
			assert.Equal(t, tt.wantLimited, limited)
		})
	}
}

func TestNewEmbedder(t *testing.T) {
	t.Parallel()

	_, err := NewEmbedder(FactoryConfig{Dimension: 0, OpenAI: OpenAIConfig{APIKey: "k"}})
	require.Error(t, err)

	_, err = NewEmbedder(FactoryConfig{Dimension: 8})
	require.Error(t, err)

	e, err := NewEmbedder(FactoryConfig{Dimension: 8, EmbeddingModel: "text-embedding-3-large", OpenAI: OpenAIConfig{APIKey: "k"}})
	require.NoError(t, err)
	assert.Equal(t, 8, e.Dimension())
}

type countingCompleter struct {
	calls atomic.Int32
}

func (c *countingCompleter) Complete(_ context.Context, _ CompletionRequest) (*CompletionResult, error) {
	c.calls.Add(1)
	return &CompletionResult{Text: "ok", Model: "fake"}, nil
}

func (c *countingCompleter) Provider() string { return "fake" }
func (c *countingCompleter) Model() string    { return "fake-1" }

func TestRateLimitedCompleter(t *testing.T) {
	t.Parallel()

	t.Run("delegates when a token is available", func(t *testing.T) {
		next := &countingCompleter{}
		c := NewRateLimitedCompleter(next, NewRateLimiter(100, 1))

		result, err := c.Complete(context.Background(), CompletionRequest{Prompt: "p"})
		require.NoError(t, err)
		assert.Equal(t, "ok", result.Text)
		assert.Equal(t, int32(1), next.calls.Load())
		assert.Equal(t, "fake", c.Provider())
		assert.Equal(t, "fake-1", c.Model())
	})

	t.Run("fails when the context ends before a token", func(t *testing.T) {
		next := &countingCompleter{}
		limiter := NewRateLimiter(0.001, 1)
		require.True(t, limiter.Allow())

		c := NewRateLimitedCompleter(next, limiter)
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err := c.Complete(ctx, CompletionRequest{Prompt: "p"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limiter")
		assert.Equal(t, int32(0), next.calls.Load())
	})

	t.Run("nil limiter passes through", func(t *testing.T) {
		next := &countingCompleter{}
		c := NewRateLimitedCompleter(next, nil)
		_, err := c.Complete(context.Background(), CompletionRequest{})
		require.NoError(t, err)
		assert.Equal(t, int32(1), next.calls.Load())
	})
}
