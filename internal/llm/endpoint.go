package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultHTTPTimeout = 60 * time.Second
	maxResponseBytes   = 10 << 20
)

// endpoint is a provider's JSON API: where to send requests, how to
// authenticate them and how to read its error bodies.
type endpoint struct {
	provider   string
	httpClient *http.Client
	baseURL    string
	headers    map[string]string
	parseErr   func(statusCode int, body []byte) *APIError
	maxRetries int
	retryDelay time.Duration
}

func newEndpoint(provider, baseURL, fallbackURL string, timeout time.Duration, maxRetries int, retryDelay time.Duration) endpoint {
	baseURL = strings.TrimRight(baseURL, "/")
	if baseURL == "" {
		baseURL = fallbackURL
	}
	return endpoint{
		provider:   provider,
		httpClient: newHTTPClient(timeout),
		baseURL:    baseURL,
		headers:    map[string]string{},
		maxRetries: max(maxRetries, 0),
		retryDelay: retryDelay,
	}
}

// call POSTs body to path and decodes the reply into out, retrying transient
// failures.
func (e *endpoint) call(ctx context.Context, path string, body, out any) error {
	return withRetry(ctx, e.provider, e.maxRetries, e.retryDelay, func() error {
		return postJSON(ctx, e.httpClient, e.baseURL+path, e.headers, body, out, e.provider, e.parseErr)
	})
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// postJSON sends one request. Non-200 replies become the APIError built by
// parseErr, carrying any Retry-After; transport failures become transient
// network errors.
func postJSON(
	ctx context.Context,
	client *http.Client,
	url string,
	headers map[string]string,
	body, out any,
	provider string,
	parseErr func(int, []byte) *APIError,
) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("%s: encode request: %w", provider, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%s: build request: %w", provider, err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return networkError(provider, "request failed: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return networkError(provider, "read response: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := parseErr(resp.StatusCode, raw)
		apiErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return apiErr
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", provider, err)
	}
	return nil
}
