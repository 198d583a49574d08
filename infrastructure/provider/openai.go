package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	openAIDefaultChatModel      = "gpt-4"
	openAIDefaultEmbeddingModel = "text-embedding-3-small"

	deepseekBaseURL      = "https://api.deepseek.com/v1"
	deepseekDefaultModel = "deepseek-chat"
	ollamaDefaultHost    = "http://localhost:11434"
)

// errEmbeddingCountMismatch indicates the API returned fewer embedding
// vectors than texts. Transient upstream load can produce partial
// responses behind a 200 status, so this is retried.
var errEmbeddingCountMismatch = errors.New("embedding response count mismatch")

// errUpstreamProviderFailure indicates an HTTP 200 whose body carried an
// error instead of embeddings. Routing gateways (OpenRouter and the
// like) answer this way when every upstream is down; retrying is
// pointless, so the error is terminal.
var errUpstreamProviderFailure = errors.New("upstream provider failure")

// OpenAIConfig holds the settings for any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey         string
	BaseURL        string
	ChatModel      string
	EmbeddingModel string
	Timeout        time.Duration
	MaxRetries     int
	InitialDelay   time.Duration
	BackoffFactor  float64
	Transport      http.RoundTripper
}

// OpenAIProvider speaks the OpenAI wire protocol, which also covers
// DeepSeek and Ollama. Capability flags let protocol-compatible
// endpoints that lack an embedding API present as text-only.
type OpenAIProvider struct {
	client            *openai.Client
	chatModel         string
	embeddingModel    string
	retry             retryPolicy
	supportsText      bool
	supportsEmbedding bool
}

// NewOpenAIProviderFromConfig creates a provider against the OpenAI API
// or a compatible endpoint named by BaseURL.
func NewOpenAIProviderFromConfig(cfg OpenAIConfig) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 || cfg.Transport != nil {
		clientCfg.HTTPClient = &http.Client{
			Timeout:   cfg.Timeout,
			Transport: cfg.Transport,
		}
	}

	chatModel := cfg.ChatModel
	if chatModel == "" {
		chatModel = openAIDefaultChatModel
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = openAIDefaultEmbeddingModel
	}

	return &OpenAIProvider{
		client:            openai.NewClientWithConfig(clientCfg),
		chatModel:         chatModel,
		embeddingModel:    embeddingModel,
		retry:             newRetryPolicy(cfg.MaxRetries, cfg.InitialDelay, cfg.BackoffFactor),
		supportsText:      true,
		supportsEmbedding: true,
	}
}

// NewDeepSeekProvider creates a provider against the DeepSeek API, which
// speaks the OpenAI wire protocol. DeepSeek has no embedding endpoint,
// so the returned provider is text-only.
func NewDeepSeekProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = deepseekBaseURL
	}
	if cfg.ChatModel == "" {
		cfg.ChatModel = deepseekDefaultModel
	}
	p := NewOpenAIProviderFromConfig(cfg)
	p.supportsEmbedding = false
	return p
}

// NewOllamaProvider creates a provider against a local Ollama server,
// which exposes an OpenAI-compatible API under /v1. Ollama ignores the
// API key but the client library requires one.
func NewOllamaProvider(cfg OpenAIConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = ollamaDefaultHost
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if !strings.HasSuffix(cfg.BaseURL, "/v1") {
		cfg.BaseURL += "/v1"
	}
	if cfg.APIKey == "" {
		cfg.APIKey = "ollama"
	}
	return NewOpenAIProviderFromConfig(cfg)
}

// SupportsTextGeneration reports whether chat completions are available.
func (p *OpenAIProvider) SupportsTextGeneration() bool { return p.supportsText }

// SupportsEmbedding reports whether the endpoint serves embeddings.
func (p *OpenAIProvider) SupportsEmbedding() bool { return p.supportsEmbedding }

// Close is a no-op; the underlying HTTP client needs no teardown.
func (p *OpenAIProvider) Close() error { return nil }

// ChatCompletion generates a chat completion.
func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	if !p.supportsText {
		return ChatCompletionResponse{}, ErrUnsupportedOperation
	}

	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages()))
	for _, m := range req.Messages() {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    m.Role(),
			Content: m.Content(),
		})
	}

	wireReq := openai.ChatCompletionRequest{
		Model:    p.chatModel,
		Messages: messages,
	}
	if req.MaxTokens() > 0 {
		wireReq.MaxTokens = req.MaxTokens()
	}
	if req.Temperature() > 0 {
		wireReq.Temperature = float32(req.Temperature())
	}

	var resp openai.ChatCompletionResponse
	err := p.retry.do(ctx, openAITransient, func() error {
		var callErr error
		resp, callErr = p.client.CreateChatCompletion(ctx, wireReq)
		return callErr
	})
	if err != nil {
		return ChatCompletionResponse{}, p.wrapError("chat_completion", err)
	}
	if len(resp.Choices) == 0 {
		return ChatCompletionResponse{}, NewProviderError("chat_completion", 0, "no choices in response", nil)
	}

	usage := NewUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.TotalTokens)
	return NewChatCompletionResponse(
		resp.Choices[0].Message.Content,
		string(resp.Choices[0].FinishReason),
		usage,
	), nil
}

// Embed generates embeddings for the given texts in one API call.
func (p *OpenAIProvider) Embed(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error) {
	if !p.supportsEmbedding {
		return EmbeddingResponse{}, ErrUnsupportedOperation
	}

	texts := req.Texts()
	if len(texts) == 0 {
		return NewEmbeddingResponse([][]float64{}, NewUsage(0, 0, 0)), nil
	}

	wireReq := openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(p.embeddingModel),
		Input: texts,
	}

	var resp openai.EmbeddingResponse
	err := p.retry.do(ctx, openAITransient, func() error {
		var callErr error
		resp, callErr = p.client.CreateEmbeddings(ctx, wireReq)
		if callErr != nil {
			return callErr
		}
		return checkEmbeddingResponse(resp, len(texts))
	})
	if err != nil {
		return EmbeddingResponse{}, p.wrapError("embedding", err)
	}

	embeddings := make([][]float64, len(resp.Data))
	for i, data := range resp.Data {
		vec := make([]float64, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float64(v)
		}
		embeddings[i] = vec
	}

	usage := NewUsage(resp.Usage.PromptTokens, 0, resp.Usage.TotalTokens)
	return NewEmbeddingResponse(embeddings, usage), nil
}

// checkEmbeddingResponse rejects 200-status bodies that carry no usable
// vectors. Zero data with zero usage and no model name means a routing
// gateway swallowed an upstream failure; fewer vectors than texts is a
// partial response worth retrying.
func checkEmbeddingResponse(resp openai.EmbeddingResponse, want int) error {
	if len(resp.Data) == 0 && string(resp.Model) == "" && resp.Usage.TotalTokens == 0 {
		return fmt.Errorf("%w: HTTP 200 with no embedding data, no model, and zero usage", errUpstreamProviderFailure)
	}
	if len(resp.Data) != want {
		return fmt.Errorf("%w: got %d vectors for %d texts", errEmbeddingCountMismatch, len(resp.Data), want)
	}
	return nil
}

// openAITransient classifies failures worth retrying: partial embedding
// responses, network timeouts, retryable HTTP statuses, and transport
// errors the client library reports as request errors.
func openAITransient(err error) bool {
	if errors.Is(err, errEmbeddingCountMismatch) {
		return true
	}
	if isNetTimeout(err) {
		return true
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return transientStatus(apiErr.HTTPStatusCode)
	}

	var reqErr *openai.RequestError
	return errors.As(err, &reqErr)
}

// wrapError converts a client-library error into a ProviderError.
func (p *OpenAIProvider) wrapError(operation string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError(operation, apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(operation, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}
	return NewProviderError(operation, 0, err.Error(), err)
}

var (
	_ FullProvider  = (*OpenAIProvider)(nil)
	_ TextGenerator = (*OpenAIProvider)(nil)
	_ Embedder      = (*OpenAIProvider)(nil)
)
