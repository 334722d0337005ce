package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

const (
	defaultOpenAIBaseURL    = "https://api.openai.com/v1"
	defaultOpenAIModel      = "gpt-4o-mini"
	defaultOpenAIMaxTokens  = 2048
	defaultOpenAIRetryDelay = 2 * time.Second
)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

// OpenAIConfig locates an OpenAI-compatible API. BaseURL may point at any
// server speaking the same protocol.
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

func newOpenAIEndpoint(cfg OpenAIConfig, timeout time.Duration, maxRetries int) endpoint {
	ep := newEndpoint("openai", cfg.BaseURL, defaultOpenAIBaseURL, timeout, maxRetries, defaultOpenAIRetryDelay)
	ep.headers["Authorization"] = "Bearer " + cfg.APIKey
	ep.parseErr = parseOpenAIAPIError
	return ep
}

// OpenAIProvider is a Completer backed by the Chat Completions API.
type OpenAIProvider struct {
	endpoint
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAIProvider returns a provider for cfg. maxTokens <= 0 selects the
// default response budget; transient failures are retried maxRetries times.
func NewOpenAIProvider(cfg OpenAIConfig, temperature float64, maxTokens int, timeout time.Duration, maxRetries int) *OpenAIProvider {
	p := &OpenAIProvider{
		endpoint:    newOpenAIEndpoint(cfg, timeout, maxRetries),
		model:       cfg.Model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
	if p.model == "" {
		p.model = defaultOpenAIModel
	}
	if p.maxTokens <= 0 {
		p.maxTokens = defaultOpenAIMaxTokens
	}
	return p
}

func (p *OpenAIProvider) Provider() string { return "openai" }
func (p *OpenAIProvider) Model() string    { return p.model }

// Complete sends req to the Chat Completions API. JSON requests use the
// json_object response format.
func (p *OpenAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	body := chatRequest{
		Model:       p.model,
		Temperature: p.temperature,
		MaxTokens:   p.maxTokens,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.System != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: req.System})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})
	if req.JSON {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var resp chatResponse
	if err := p.call(ctx, "/chat/completions", body, &resp); err != nil {
		return nil, err
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return nil, fmt.Errorf("openai: empty completion content (finish reason %q)", resp.Choices[0].FinishReason)
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return &CompletionResult{
		Text:         text,
		Model:        model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}

// parseOpenAIAPIError reads the {"error":{...}} envelope, falling back to the
// raw body.
func parseOpenAIAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{Provider: "openai", StatusCode: statusCode, Message: string(body)}

	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    string `json:"code"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Type = envelope.Error.Type
		apiErr.Code = envelope.Error.Code
	}
	return apiErr
}
