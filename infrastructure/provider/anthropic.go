package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicDefaultBaseURL = "https://api.anthropic.com"
	anthropicDefaultModel   = "claude-sonnet-4-20250514"
	anthropicAPIVersion     = "2023-06-01"
	anthropicDefaultTokens  = 4096
)

// AnthropicConfig holds the settings for the Claude provider. Zero
// values fall back to sensible defaults.
type AnthropicConfig struct {
	APIKey        string
	BaseURL       string
	Model         string
	Timeout       time.Duration
	MaxRetries    int
	InitialDelay  time.Duration
	BackoffFactor float64
	Transport     http.RoundTripper
}

// AnthropicProvider generates suggestions through the Anthropic Messages
// API. Anthropic has no embedding endpoint, so the provider is text-only
// and the embedding provider must be configured separately.
type AnthropicProvider struct {
	apiKey  string
	baseURL string
	model   string
	retry   retryPolicy
	http    *http.Client
}

// NewAnthropicProviderFromConfig creates a Claude provider.
func NewAnthropicProviderFromConfig(cfg AnthropicConfig) *AnthropicProvider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = anthropicDefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = anthropicDefaultModel
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &AnthropicProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		model:   model,
		retry:   newRetryPolicy(cfg.MaxRetries, cfg.InitialDelay, cfg.BackoffFactor),
		http: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
	}
}

// SupportsTextGeneration returns true.
func (p *AnthropicProvider) SupportsTextGeneration() bool { return true }

// SupportsEmbedding returns false; Anthropic does not serve embeddings.
func (p *AnthropicProvider) SupportsEmbedding() bool { return false }

// Close is a no-op; the provider holds no long-lived resources.
func (p *AnthropicProvider) Close() error { return nil }

// Wire format of the Messages API. The system prompt travels in a
// dedicated top-level field rather than as a message, so ChatCompletion
// splits it out of the message list.
type claudeRequest struct {
	Model     string       `json:"model"`
	MaxTokens int          `json:"max_tokens"`
	Messages  []claudeTurn `json:"messages"`
	System    string       `json:"system,omitempty"`
}

type claudeTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content    []claudeContentBlock `json:"content"`
	StopReason string               `json:"stop_reason"`
	Usage      claudeUsage          `json:"usage"`
}

type claudeContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeAPIError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ChatCompletion generates a completion through the Messages API.
func (p *AnthropicProvider) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	messages := req.Messages()
	if len(messages) == 0 {
		return ChatCompletionResponse{}, NewProviderError("chat_completion", 0, "no messages provided", nil)
	}

	var system string
	turns := make([]claudeTurn, 0, len(messages))
	for _, m := range messages {
		if m.Role() == "system" {
			system = m.Content()
			continue
		}
		turns = append(turns, claudeTurn{Role: m.Role(), Content: m.Content()})
	}

	maxTokens := req.MaxTokens()
	if maxTokens == 0 {
		maxTokens = anthropicDefaultTokens
	}

	wireReq := claudeRequest{
		Model:     p.model,
		MaxTokens: maxTokens,
		Messages:  turns,
		System:    system,
	}

	var wireResp claudeResponse
	err := p.retry.do(ctx, claudeTransient, func() error {
		var callErr error
		wireResp, callErr = p.post(ctx, wireReq)
		return callErr
	})
	if err != nil {
		return ChatCompletionResponse{}, err
	}

	var text strings.Builder
	for _, block := range wireResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	usage := NewUsage(
		wireResp.Usage.InputTokens,
		wireResp.Usage.OutputTokens,
		wireResp.Usage.InputTokens+wireResp.Usage.OutputTokens,
	)
	return NewChatCompletionResponse(text.String(), wireResp.StopReason, usage), nil
}

func (p *AnthropicProvider) post(ctx context.Context, req claudeRequest) (claudeResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return claudeResponse{}, NewProviderError("chat_completion", 0, "marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return claudeResponse{}, NewProviderError("chat_completion", 0, "build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

	resp, err := p.http.Do(httpReq)
	if err != nil {
		return claudeResponse{}, NewProviderError("chat_completion", 0, "request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return claudeResponse{}, NewProviderError("chat_completion", resp.StatusCode, "read response", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr claudeAPIError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return claudeResponse{}, NewProviderError("chat_completion", resp.StatusCode, apiErr.Message, nil)
		}
		return claudeResponse{}, NewProviderError("chat_completion", resp.StatusCode, string(respBody), nil)
	}

	var wireResp claudeResponse
	if err := json.Unmarshal(respBody, &wireResp); err != nil {
		return claudeResponse{}, NewProviderError("chat_completion", 0, "unmarshal response", err)
	}
	return wireResp, nil
}

// claudeTransient classifies network timeouts and retryable HTTP
// statuses as worth another attempt.
func claudeTransient(err error) bool {
	if isNetTimeout(err) {
		return true
	}
	var provErr *ProviderError
	return errors.As(err, &provErr) && transientStatus(provErr.StatusCode())
}

var (
	_ TextOnlyProvider = (*AnthropicProvider)(nil)
	_ TextGenerator    = (*AnthropicProvider)(nil)
)
