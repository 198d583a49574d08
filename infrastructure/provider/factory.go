package provider

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/codecompass/codecompass/domain/service"
	"github.com/codecompass/codecompass/internal/config"
)

// Factory resolves providers from the application configuration. Instances
// are cached per provider/model pair so repeated resolutions reuse HTTP
// clients and local inference sessions. ClearCache drops every cached
// instance; the next resolution rebuilds from the then-current config, which
// is how a runtime model switch takes effect.
type Factory struct {
	cfg    *config.AppConfig
	logger *slog.Logger

	// transport is shared by every HTTP-backed provider; non-nil only
	// when response caching is enabled.
	transport http.RoundTripper

	mu    sync.Mutex
	cache map[string]Provider
}

// NewFactory creates a Factory over the given configuration.
func NewFactory(cfg *config.AppConfig, logger *slog.Logger) *Factory {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Factory{
		cfg:    cfg,
		logger: logger,
		cache:  make(map[string]Provider),
	}
	if dir := cfg.LLMHTTPCacheDir(); dir != "" {
		f.transport = NewCachingTransport(dir, nil)
		logger.Info("provider HTTP response caching enabled", "dir", dir)
	}
	return f
}

// Provider returns the cached provider for the name/model pair, building
// it on first use.
func (f *Factory) Provider(ctx context.Context, name, model string) (Provider, error) {
	key := name + "/" + model

	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.cache[key]; ok {
		return p, nil
	}

	p, err := f.build(ctx, name, model)
	if err != nil {
		return nil, err
	}
	f.cache[key] = p
	f.logger.Debug("provider created", "provider", name, "model", model)
	return p, nil
}

// ClearCache closes and drops every cached provider.
func (f *Factory) ClearCache() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for key, p := range f.cache {
		if err := p.Close(); err != nil {
			f.logger.Warn("failed to close provider", "provider", key, "error", err)
		}
		delete(f.cache, key)
	}
}

func (f *Factory) build(ctx context.Context, name, model string) (Provider, error) {
	switch name {
	case config.ProviderOpenAI:
		ep := f.cfg.OpenAI()
		if ep.APIKey() == "" {
			return nil, fmt.Errorf("openai: missing OPENAI_API_KEY: %w", ErrNotConfigured)
		}
		return NewOpenAIProviderFromConfig(f.openAIConfig(ep, model)), nil

	case config.ProviderDeepSeek:
		ep := f.cfg.DeepSeek()
		if ep.APIKey() == "" {
			return nil, fmt.Errorf("deepseek: missing DEEPSEEK_API_KEY: %w", ErrNotConfigured)
		}
		return NewDeepSeekProvider(f.openAIConfig(ep, model)), nil

	case config.ProviderOllama:
		// Ollama needs no credentials, only a reachable host.
		return NewOllamaProvider(f.openAIConfig(f.cfg.Ollama(), model)), nil

	case config.ProviderClaude:
		ep := f.cfg.Anthropic()
		if ep.APIKey() == "" {
			return nil, fmt.Errorf("claude: missing ANTHROPIC_API_KEY: %w", ErrNotConfigured)
		}
		return NewAnthropicProviderFromConfig(AnthropicConfig{
			APIKey:        ep.APIKey(),
			BaseURL:       ep.BaseURL(),
			Model:         model,
			Timeout:       ep.Timeout(),
			MaxRetries:    ep.MaxRetries(),
			InitialDelay:  ep.InitialDelay(),
			BackoffFactor: ep.BackoffFactor(),
			Transport:     f.transport,
		}), nil

	case config.ProviderGemini:
		ep := f.cfg.Gemini()
		if ep.APIKey() == "" {
			return nil, fmt.Errorf("gemini: missing GEMINI_API_KEY: %w", ErrNotConfigured)
		}
		return NewGeminiProvider(ctx, GeminiConfig{
			APIKey:         ep.APIKey(),
			BaseURL:        ep.BaseURL(),
			Model:          model,
			EmbeddingModel: f.cfg.EmbeddingModel(),
			Timeout:        ep.Timeout(),
			MaxRetries:     ep.MaxRetries(),
			InitialDelay:   ep.InitialDelay(),
			BackoffFactor:  ep.BackoffFactor(),
			Transport:      f.transport,
		})

	case config.ProviderLocal:
		// Model files are resolved lazily; absence surfaces on first Embed.
		return NewHugotEmbedding(f.cfg.ModelCacheDir()), nil

	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

func (f *Factory) openAIConfig(ep config.Endpoint, model string) OpenAIConfig {
	return OpenAIConfig{
		APIKey:         ep.APIKey(),
		BaseURL:        ep.BaseURL(),
		ChatModel:      model,
		EmbeddingModel: f.cfg.EmbeddingModel(),
		Timeout:        ep.Timeout(),
		MaxRetries:     ep.MaxRetries(),
		InitialDelay:   ep.InitialDelay(),
		BackoffFactor:  ep.BackoffFactor(),
		Transport:      f.transport,
	}
}

// Embedder returns the embedding adapter for the configured embedding
// provider. Vector dimensions are checked against EMBEDDING_DIMENSION on
// every call.
func (f *Factory) Embedder(ctx context.Context) (service.Embedder, error) {
	name := f.cfg.EmbeddingProvider()
	p, err := f.Provider(ctx, name, f.cfg.EmbeddingModel())
	if err != nil {
		return nil, fmt.Errorf("embedding provider %s: %w", name, err)
	}
	e, ok := p.(Embedder)
	if !ok || !p.SupportsEmbedding() {
		return nil, fmt.Errorf("provider %q embeddings: %w", name, ErrUnsupportedOperation)
	}
	return &embeddingAdapter{embedder: e, dimension: f.cfg.EmbeddingDimension()}, nil
}

// SuggestionGenerator returns the text generator for the current
// suggestion provider/model selection.
func (f *Factory) SuggestionGenerator(ctx context.Context) (service.TextGenerator, error) {
	name := f.cfg.SuggestionProvider()
	model := f.cfg.SuggestionModel()

	p, err := f.Provider(ctx, name, model)
	if err != nil {
		return nil, fmt.Errorf("suggestion provider %s: %w", name, err)
	}
	g, ok := p.(TextGenerator)
	if !ok || !p.SupportsTextGeneration() {
		return nil, fmt.Errorf("provider %q text generation: %w", name, ErrUnsupportedOperation)
	}

	maxTokens := 0
	if ep, ok := f.cfg.Endpoint(name); ok {
		maxTokens = ep.MaxTokens()
	}
	return &generatorAdapter{generator: g, maxTokens: maxTokens}, nil
}

// SuggestionAvailable reports whether a suggestion generator resolves
// right now.
func (f *Factory) SuggestionAvailable(ctx context.Context) bool {
	_, err := f.SuggestionGenerator(ctx)
	return err == nil
}

// CheckConnection verifies the embedding path end to end by embedding a
// short probe text.
func (f *Factory) CheckConnection(ctx context.Context) error {
	embedder, err := f.Embedder(ctx)
	if err != nil {
		return err
	}
	if _, err := embedder.GenerateEmbedding(ctx, "connection probe"); err != nil {
		return fmt.Errorf("embedding provider check failed: %w", err)
	}
	return nil
}

// batchCapacity is implemented by providers with a per-call input limit.
type batchCapacity interface {
	Capacity() int
}

// embeddingAdapter bridges a provider Embedder to the domain interface,
// splitting oversized inputs to the provider's capacity and enforcing the
// configured vector dimension.
type embeddingAdapter struct {
	embedder  Embedder
	dimension int
}

func (a *embeddingAdapter) GenerateEmbedding(ctx context.Context, text string) ([]float64, error) {
	vectors, err := a.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned")
	}
	return vectors[0], nil
}

func (a *embeddingAdapter) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	step := len(texts)
	if c, ok := a.embedder.(batchCapacity); ok && c.Capacity() > 0 && c.Capacity() < step {
		step = c.Capacity()
	}

	vectors := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += step {
		end := start + step
		if end > len(texts) {
			end = len(texts)
		}
		resp, err := a.embedder.Embed(ctx, NewEmbeddingRequest(texts[start:end]))
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, resp.Embeddings()...)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(vectors))
	}
	for i, v := range vectors {
		if a.dimension > 0 && len(v) != a.dimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), a.dimension)
		}
	}
	return vectors, nil
}

// generatorAdapter bridges a provider TextGenerator to the domain
// interface.
type generatorAdapter struct {
	generator TextGenerator
	maxTokens int
}

func (a *generatorAdapter) GenerateText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	var messages []Message
	if systemPrompt != "" {
		messages = append(messages, SystemMessage(systemPrompt))
	}
	messages = append(messages, UserMessage(userPrompt))

	req := NewChatCompletionRequest(messages)
	if a.maxTokens > 0 {
		req = req.WithMaxTokens(a.maxTokens)
	}

	resp, err := a.generator.ChatCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	return resp.Content(), nil
}

var (
	_ service.TextGeneratorSource = (*Factory)(nil)
	_ service.ConnectionChecker   = (*Factory)(nil)
	_ service.Embedder            = (*embeddingAdapter)(nil)
	_ service.TextGenerator       = (*generatorAdapter)(nil)
)
