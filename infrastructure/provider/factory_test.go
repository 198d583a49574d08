package provider

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecompass/codecompass/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func stubConfig(srv *httptest.Server, opts ...config.AppConfigOption) *config.AppConfig {
	base := []config.AppConfigOption{
		config.WithOllamaEndpoint(config.NewEndpointWithOptions(config.WithBaseURL(srv.URL))),
		config.WithEmbeddingProvider(config.ProviderOllama),
		config.WithEmbeddingModel("stub-embed"),
		config.WithEmbeddingDimension(3),
		config.WithSuggestionProvider(config.ProviderOllama),
		config.WithSuggestionModel("stub-chat"),
	}
	return config.NewAppConfigWithOptions(append(base, opts...)...)
}

func TestFactoryCachesProviders(t *testing.T) {
	stub := &openAIStub{echoModel: true}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	f := NewFactory(stubConfig(srv), testLogger())
	ctx := context.Background()

	first, err := f.Provider(ctx, config.ProviderOllama, "stub-chat")
	require.NoError(t, err)
	second, err := f.Provider(ctx, config.ProviderOllama, "stub-chat")
	require.NoError(t, err)
	assert.Same(t, first, second, "same provider/model pair must reuse the instance")

	other, err := f.Provider(ctx, config.ProviderOllama, "another-model")
	require.NoError(t, err)
	assert.NotSame(t, first, other, "a different model gets its own instance")

	f.ClearCache()
	rebuilt, err := f.Provider(ctx, config.ProviderOllama, "stub-chat")
	require.NoError(t, err)
	assert.NotSame(t, first, rebuilt, "cache clear must force a rebuild")
}

func TestFactoryRejectsUnknownProvider(t *testing.T) {
	stub := &openAIStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	f := NewFactory(stubConfig(srv), testLogger())

	_, err := f.Provider(context.Background(), "watson", "any")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestFactoryRequiresCredentials(t *testing.T) {
	stub := &openAIStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	f := NewFactory(stubConfig(srv), testLogger())
	ctx := context.Background()

	for _, name := range []string{config.ProviderOpenAI, config.ProviderDeepSeek, config.ProviderClaude, config.ProviderGemini} {
		_, err := f.Provider(ctx, name, "any")
		require.ErrorIs(t, err, ErrNotConfigured, "provider %s without a key", name)
	}
}

func TestFactorySuggestionGenerator(t *testing.T) {
	stub := &openAIStub{echoModel: true}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	f := NewFactory(stubConfig(srv), testLogger())
	ctx := context.Background()

	require.True(t, f.SuggestionAvailable(ctx))

	gen, err := f.SuggestionGenerator(ctx)
	require.NoError(t, err)

	text, err := gen.GenerateText(ctx, "you are terse", "say hi")
	require.NoError(t, err)
	assert.Equal(t, "stub reply", text)
}

func TestFactorySuggestionUnavailableWithoutKey(t *testing.T) {
	stub := &openAIStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	cfg := stubConfig(srv,
		config.WithSuggestionProvider(config.ProviderClaude),
		config.WithSuggestionModel("claude-sonnet-4-20250514"),
	)
	f := NewFactory(cfg, testLogger())

	assert.False(t, f.SuggestionAvailable(context.Background()))

	_, err := f.SuggestionGenerator(context.Background())
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestFactoryLocalProviderDoesNotGenerateText(t *testing.T) {
	stub := &openAIStub{}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	cfg := stubConfig(srv,
		config.WithSuggestionProvider(config.ProviderLocal),
		config.WithSuggestionModel("builtin"),
	)
	f := NewFactory(cfg, testLogger())

	_, err := f.SuggestionGenerator(context.Background())
	require.ErrorIs(t, err, ErrUnsupportedOperation)
}

func TestFactoryEmbedderChecksDimension(t *testing.T) {
	stub := &openAIStub{echoModel: true}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	ctx := context.Background()

	t.Run("matching dimension", func(t *testing.T) {
		f := NewFactory(stubConfig(srv), testLogger())
		embedder, err := f.Embedder(ctx)
		require.NoError(t, err)

		vec, err := embedder.GenerateEmbedding(ctx, "hello")
		require.NoError(t, err)
		assert.Len(t, vec, 3)
	})

	t.Run("mismatched dimension", func(t *testing.T) {
		f := NewFactory(stubConfig(srv, config.WithEmbeddingDimension(768)), testLogger())
		embedder, err := f.Embedder(ctx)
		require.NoError(t, err)

		_, err = embedder.GenerateEmbedding(ctx, "hello")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "dimension")
	})
}

func TestFactoryCheckConnection(t *testing.T) {
	stub := &openAIStub{echoModel: true}
	srv := httptest.NewServer(stub.handler())
	defer srv.Close()

	t.Run("reachable", func(t *testing.T) {
		f := NewFactory(stubConfig(srv), testLogger())
		require.NoError(t, f.CheckConnection(context.Background()))
	})

	t.Run("bad vectors", func(t *testing.T) {
		f := NewFactory(stubConfig(srv, config.WithEmbeddingDimension(768)), testLogger())
		require.Error(t, f.CheckConnection(context.Background()))
	})
}

// capacityEmbedder records batch sizes and reports a fixed per-call limit.
type capacityEmbedder struct {
	capacity int
	batches  []int
}

func (c *capacityEmbedder) Capacity() int { return c.capacity }

func (c *capacityEmbedder) Embed(_ context.Context, req EmbeddingRequest) (EmbeddingResponse, error) {
	texts := req.Texts()
	c.batches = append(c.batches, len(texts))
	vectors := make([][]float64, len(texts))
	for i := range vectors {
		vectors[i] = []float64{0.1, 0.2, 0.3}
	}
	return NewEmbeddingResponse(vectors, NewUsage(0, 0, 0)), nil
}

func TestEmbeddingAdapterSplitsToCapacity(t *testing.T) {
	fake := &capacityEmbedder{capacity: 4}
	adapter := &embeddingAdapter{embedder: fake, dimension: 3}

	texts := make([]string, 10)
	for i := range texts {
		texts[i] = "chunk"
	}

	vectors, err := adapter.GenerateEmbeddings(context.Background(), texts)
	require.NoError(t, err)
	assert.Len(t, vectors, 10)
	assert.Equal(t, []int{4, 4, 2}, fake.batches)
}
