package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"google.golang.org/genai"
)

// GeminiProvider implements text generation and embeddings using the Google
// Gemini API via the Gen AI SDK.
type GeminiProvider struct {
	client         *genai.Client
	model          string
	embeddingModel string
	retry          retryPolicy
}

// GeminiConfig holds configuration for the Gemini provider.
type GeminiConfig struct {
	APIKey         string
	BaseURL        string
	Model          string
	EmbeddingModel string
	Timeout        time.Duration
	MaxRetries     int
	InitialDelay   time.Duration
	BackoffFactor  float64
	Transport      http.RoundTripper
}

// NewGeminiProvider creates a provider from configuration. The context is
// used only for client construction.
func NewGeminiProvider(ctx context.Context, cfg GeminiConfig) (*GeminiProvider, error) {
	model := cfg.Model
	if model == "" {
		model = "gemini-2.0-flash"
	}

	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = "gemini-embedding-001"
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
		HTTPClient: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
		},
	}
	if cfg.BaseURL != "" {
		clientConfig.HTTPOptions.BaseURL = cfg.BaseURL
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiProvider{
		client:         client,
		model:          model,
		embeddingModel: embeddingModel,
		retry:          newRetryPolicy(cfg.MaxRetries, cfg.InitialDelay, cfg.BackoffFactor),
	}, nil
}

// SupportsTextGeneration returns true.
func (p *GeminiProvider) SupportsTextGeneration() bool {
	return true
}

// SupportsEmbedding returns true.
func (p *GeminiProvider) SupportsEmbedding() bool {
	return true
}

// Close is a no-op for the Gemini provider.
func (p *GeminiProvider) Close() error {
	return nil
}

// ChatCompletion generates a chat completion using Gemini.
func (p *GeminiProvider) ChatCompletion(ctx context.Context, req ChatCompletionRequest) (ChatCompletionResponse, error) {
	messages := req.Messages()
	if len(messages) == 0 {
		return ChatCompletionResponse{}, NewProviderError("chat_completion", 0, "no messages provided", nil)
	}

	config := &genai.GenerateContentConfig{}

	// System messages become the system instruction; the rest map onto the
	// user/model conversation turns Gemini expects.
	var contents []*genai.Content
	for _, m := range messages {
		switch m.Role() {
		case "system":
			config.SystemInstruction = &genai.Content{
				Parts: []*genai.Part{{Text: m.Content()}},
			}
		case "assistant":
			contents = append(contents, &genai.Content{
				Role:  genai.RoleModel,
				Parts: []*genai.Part{{Text: m.Content()}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: m.Content()}},
			})
		}
	}

	maxTokens := req.MaxTokens()
	if maxTokens == 0 {
		maxTokens = 4096
	}
	config.MaxOutputTokens = int32(maxTokens)

	if t := req.Temperature(); t > 0 {
		config.Temperature = genai.Ptr(float32(t))
	}

	var resp *genai.GenerateContentResponse
	err := p.retry.do(ctx, geminiTransient, func() error {
		var genErr error
		resp, genErr = p.client.Models.GenerateContent(ctx, p.model, contents, config)
		return genErr
	})
	if err != nil {
		return ChatCompletionResponse{}, p.wrapError("chat_completion", err)
	}

	var finishReason string
	if len(resp.Candidates) > 0 {
		finishReason = string(resp.Candidates[0].FinishReason)
	}

	var usage Usage
	if resp.UsageMetadata != nil {
		usage = NewUsage(
			int(resp.UsageMetadata.PromptTokenCount),
			int(resp.UsageMetadata.CandidatesTokenCount),
			int(resp.UsageMetadata.TotalTokenCount),
		)
	}

	return NewChatCompletionResponse(resp.Text(), finishReason, usage), nil
}

// Embed generates embeddings using the Gemini embedding model.
func (p *GeminiProvider) Embed(ctx context.Context, req EmbeddingRequest) (EmbeddingResponse, error) {
	texts := req.Texts()
	if len(texts) == 0 {
		return NewEmbeddingResponse(nil, Usage{}), nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, t := range texts {
		contents[i] = &genai.Content{
			Parts: []*genai.Part{{Text: t}},
		}
	}

	var resp *genai.EmbedContentResponse
	err := p.retry.do(ctx, geminiTransient, func() error {
		var embErr error
		resp, embErr = p.client.Models.EmbedContent(ctx, p.embeddingModel, contents, nil)
		return embErr
	})
	if err != nil {
		return EmbeddingResponse{}, p.wrapError("embed", err)
	}

	if len(resp.Embeddings) != len(texts) {
		return EmbeddingResponse{}, fmt.Errorf("%w: got %d vectors for %d texts", errEmbeddingCountMismatch, len(resp.Embeddings), len(texts))
	}

	embeddings := make([][]float64, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		vec := make([]float64, len(e.Values))
		for j, v := range e.Values {
			vec[j] = float64(v)
		}
		embeddings[i] = vec
	}

	// The embed endpoint does not report token usage.
	return NewEmbeddingResponse(embeddings, Usage{}), nil
}

// geminiTransient classifies network timeouts and retryable API status
// codes as worth another attempt.
func geminiTransient(err error) bool {
	if isNetTimeout(err) {
		return true
	}
	var apiErr genai.APIError
	return errors.As(err, &apiErr) && transientStatus(apiErr.Code)
}

// wrapError converts SDK errors into ProviderError so callers see a uniform
// error shape across providers.
func (p *GeminiProvider) wrapError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError(operation, apiErr.Code, apiErr.Message, err)
	}

	return NewProviderError(operation, 0, "request failed", err)
}

// Ensure GeminiProvider implements the interfaces.
var (
	_ FullProvider  = (*GeminiProvider)(nil)
	_ TextGenerator = (*GeminiProvider)(nil)
	_ Embedder      = (*GeminiProvider)(nil)
)
