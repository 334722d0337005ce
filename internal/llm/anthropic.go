package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	anthropicAPIVersion = "2023-06-01"

	defaultAnthropicBaseURL   = "https://api.anthropic.com"
	defaultAnthropicModel     = "claude-3-5-haiku-latest"
	defaultAnthropicMaxTokens = 2048

	// jsonPrefill opens the assistant turn in JSON mode so the model continues
	// an object instead of starting with prose. The API omits it from the reply.
	jsonPrefill = "{"
	jsonSystem  = "Respond with a single JSON object and no surrounding prose."
)

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messagesRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type messagesResponse struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Role       string         `json:"role"`
	Content    []contentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"`
	Usage      anthropicUsage `json:"usage"`
}

// AnthropicConfig locates the Anthropic API.
type AnthropicConfig struct {
	APIKey  string
	Model   string
	BaseURL string
}

// AnthropicProvider is a Completer backed by the Anthropic Messages API.
type AnthropicProvider struct {
	endpoint
	model       string
	temperature float64
	maxTokens   int
}

// NewAnthropicProvider returns a provider for cfg. maxTokens <= 0 selects the
// default response budget; transient failures are retried maxRetries times.
func NewAnthropicProvider(cfg AnthropicConfig, temperature float64, maxTokens int, timeout time.Duration, maxRetries int) *AnthropicProvider {
	ep := newEndpoint("anthropic", cfg.BaseURL, defaultAnthropicBaseURL, timeout, maxRetries, time.Second)
	ep.headers["x-api-key"] = cfg.APIKey
	ep.headers["anthropic-version"] = anthropicAPIVersion
	ep.parseErr = parseAnthropicAPIError

	p := &AnthropicProvider{
		endpoint:    ep,
		model:       cfg.Model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
	if p.model == "" {
		p.model = defaultAnthropicModel
	}
	if p.maxTokens <= 0 {
		p.maxTokens = defaultAnthropicMaxTokens
	}
	return p
}

func (p *AnthropicProvider) Provider() string { return "anthropic" }
func (p *AnthropicProvider) Model() string    { return p.model }

// Complete sends req as a single user turn. The Messages API has no JSON
// mode, so JSON requests get a system instruction and a "{" prefill that is
// restored on the returned text.
func (p *AnthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	body := p.buildRequest(req)

	var resp messagesResponse
	if err := p.call(ctx, "/v1/messages", body, &resp); err != nil {
		return nil, err
	}

	text := resp.text()
	if text == "" {
		return nil, fmt.Errorf("anthropic: response contains no text content blocks")
	}
	if req.JSON && !strings.HasPrefix(strings.TrimSpace(text), jsonPrefill) {
		text = jsonPrefill + text
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return &CompletionResult{
		Text:         text,
		Model:        model,
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}, nil
}

func (p *AnthropicProvider) buildRequest(req CompletionRequest) messagesRequest {
	body := messagesRequest{
		Model:       p.model,
		MaxTokens:   p.maxTokens,
		System:      req.System,
		Messages:    []anthropicMessage{{Role: "user", Content: req.Prompt}},
		Temperature: p.temperature,
	}
	if req.MaxTokens > 0 {
		body.MaxTokens = req.MaxTokens
	}
	if req.JSON {
		body.System = strings.TrimSpace(body.System + "\n\n" + jsonSystem)
		body.Messages = append(body.Messages, anthropicMessage{Role: "assistant", Content: jsonPrefill})
	}
	return body
}

// text joins the text blocks of a reply, skipping tool and thinking blocks.
func (r *messagesResponse) text() string {
	var sb strings.Builder
	for _, block := range r.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// parseAnthropicAPIError reads the {"type":"error","error":{...}} envelope,
// falling back to the raw body.
func parseAnthropicAPIError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{Provider: "anthropic", StatusCode: statusCode, Message: string(body)}

	var envelope struct {
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Type = envelope.Error.Type
		apiErr.Message = envelope.Error.Message
	}
	return apiErr
}
