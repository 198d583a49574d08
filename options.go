package codecompass

import (
	"io"
	"log/slog"
	"time"

	domainservice "github.com/codecompass/codecompass/domain/service"
	"github.com/codecompass/codecompass/internal/config"
)

// clientConfig holds configuration for Client construction.
// Use newClientConfig() to create with defaults from internal/config.
type clientConfig struct {
	fromEnv    bool
	envFile    string
	configOpts []config.AppConfigOption
	logger     *slog.Logger

	// Injection points. Nil fields fall back to the built-in
	// implementations (Qdrant store, provider factory, git inspector).
	store      domainservice.VectorStore
	embedder   domainservice.Embedder
	generators domainservice.TextGeneratorSource
	checker    domainservice.ConnectionChecker
	inspector  domainservice.Inspector

	closers []io.Closer
}

// newClientConfig creates an empty clientConfig. Configuration defaults
// come from internal/config when New resolves the AppConfig.
func newClientConfig() *clientConfig {
	return &clientConfig{}
}

// Option configures the Client.
type Option func(*clientConfig)

// WithEnv loads the base configuration from the environment, reading
// envFile first when it exists (empty means ".env" in the current
// directory). Real environment variables win over file values; options
// passed to New win over both.
func WithEnv(envFile string) Option {
	return func(c *clientConfig) {
		c.fromEnv = true
		c.envFile = envFile
	}
}

// WithRepoPath sets the target Git repository. Required unless the
// environment provides REPO_PATH.
func WithRepoPath(path string) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithRepoPath(path))
	}
}

// WithHost sets the host the utility HTTP server binds to.
func WithHost(host string) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithHost(host))
	}
}

// WithHTTPPort sets the utility HTTP port. Port 0 requests a dynamic
// port.
func WithHTTPPort(port int) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithHTTPPort(port))
	}
}

// WithDataDir sets the directory for model files and provider caches.
func WithDataDir(dir string) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithDataDir(dir))
	}
}

// WithQdrantHost sets the Qdrant base URL.
func WithQdrantHost(url string) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithQdrantHost(url))
	}
}

// WithCollectionName sets the vector collection name.
func WithCollectionName(name string) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithCollectionName(name))
	}
}

// WithEmbedding selects the embedding provider, model, and vector
// dimension. Empty strings and non-positive dimensions keep the current
// values.
func WithEmbedding(provider, model string, dimension int) Option {
	return func(c *clientConfig) {
		if provider != "" {
			c.configOpts = append(c.configOpts, config.WithEmbeddingProvider(provider))
		}
		if model != "" {
			c.configOpts = append(c.configOpts, config.WithEmbeddingModel(model))
		}
		if dimension > 0 {
			c.configOpts = append(c.configOpts, config.WithEmbeddingDimension(dimension))
		}
	}
}

// WithSuggestionModel selects the initial suggestion provider and model.
// Empty strings keep the current values. The model remains switchable at
// runtime through the switch_suggestion_model tool.
func WithSuggestionModel(provider, model string) Option {
	return func(c *clientConfig) {
		if provider != "" {
			c.configOpts = append(c.configOpts, config.WithSuggestionProvider(provider))
		}
		if model != "" {
			c.configOpts = append(c.configOpts, config.WithSuggestionModel(model))
		}
	}
}

// WithSyncInterval sets how often the repository is re-indexed in the
// background. Zero disables periodic re-indexing.
func WithSyncInterval(d time.Duration) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithRepoSyncInterval(d))
	}
}

// WithGitBackend selects the git plumbing implementation: "gogit"
// (pure Go, default) or "gitea" (shells out to the git binary).
func WithGitBackend(backend string) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithGitBackend(config.GitBackend(backend)))
	}
}

// WithFileChunking sets the file chunk size and overlap in runes.
func WithFileChunking(size, overlap int) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithFileChunking(size, overlap))
	}
}

// WithDiffChunking sets the diff chunk size and overlap in runes.
func WithDiffChunking(size, overlap int) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithDiffChunking(size, overlap))
	}
}

// WithCommitHistoryLimit sets how many commits each indexing run covers.
func WithCommitHistoryLimit(n int) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithCommitHistoryLimit(n))
	}
}

// WithSearchLimit sets the default search result limit.
func WithSearchLimit(n int) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithSearchLimit(n))
	}
}

// WithMaxRefinements sets the query refinement iteration cap.
func WithMaxRefinements(n int) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithMaxRefinements(n))
	}
}

// WithAgentSteps sets the agent's default and absolute step budgets.
func WithAgentSteps(defaultMax, absoluteMax int) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithAgentSteps(defaultMax, absoluteMax))
	}
}

// WithAgentQueryTimeout sets the wall-clock bound for one agent_query
// invocation.
func WithAgentQueryTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.configOpts = append(c.configOpts, config.WithAgentQueryTimeout(d))
	}
}

// WithLogger sets a custom logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		c.logger = l
	}
}

// WithVectorStore replaces the built-in Qdrant store.
func WithVectorStore(s domainservice.VectorStore) Option {
	return func(c *clientConfig) {
		c.store = s
	}
}

// WithEmbedder replaces the configured embedding provider.
func WithEmbedder(e domainservice.Embedder) Option {
	return func(c *clientConfig) {
		c.embedder = e
	}
}

// WithTextGeneratorSource replaces the provider factory as the source of
// suggestion generators.
func WithTextGeneratorSource(g domainservice.TextGeneratorSource) Option {
	return func(c *clientConfig) {
		c.generators = g
	}
}

// WithConnectionChecker replaces the provider factory's connection
// probe.
func WithConnectionChecker(ch domainservice.ConnectionChecker) Option {
	return func(c *clientConfig) {
		c.checker = ch
	}
}

// WithInspector replaces the built-in git inspector.
func WithInspector(i domainservice.Inspector) Option {
	return func(c *clientConfig) {
		c.inspector = i
	}
}

// WithCloser registers a resource to be closed when the Client shuts
// down.
func WithCloser(c io.Closer) Option {
	return func(cfg *clientConfig) {
		cfg.closers = append(cfg.closers, c)
	}
}
