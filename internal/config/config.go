// Package config provides application configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Default configuration values.
const (
	DefaultHost                  = "127.0.0.1"
	DefaultHTTPPort              = 3001
	DefaultLogLevel              = "INFO"
	DefaultQdrantHost            = "http://localhost:6333"
	DefaultCollectionName        = "codecompass"
	DefaultEmbeddingProvider     = "ollama"
	DefaultEmbeddingModel        = "nomic-embed-text:v1.5"
	DefaultEmbeddingDimension    = 768
	DefaultSuggestionProvider    = "ollama"
	DefaultSuggestionModel       = "llama3.1:8b"
	DefaultGitBackend            = "gogit"
	DefaultModelSubdir           = "models"
	DefaultFileChunkSize         = 1000
	DefaultFileChunkOverlap      = 200
	DefaultDiffChunkSize         = 1500
	DefaultDiffChunkOverlap      = 200
	DefaultCommitHistoryLimit    = 50
	DefaultBatchUpsertSize       = 100
	DefaultDiffContextLines      = 3
	DefaultMaxRefinements        = 3
	DefaultSearchLimit           = 10
	DefaultAgentMaxSteps         = 5
	DefaultAgentAbsoluteMaxSteps = 10
	DefaultAgentQueryTimeout     = 180 * time.Second
	DefaultMaxSnippetLength      = 1500
	DefaultMaxFilesNoSummary     = 5
	DefaultMaxDiffLength         = 3000
	DefaultEndpointTimeout       = 60 * time.Second
	DefaultEndpointMaxRetries    = 5
	DefaultEndpointInitialDelay  = 2 * time.Second
	DefaultEndpointBackoff       = 2.0
	DefaultEndpointMaxTokens     = 4000
	DefaultEmbeddingParallelism  = 4
	DefaultOllamaHost            = "http://localhost:11434"
	DefaultDeepSeekBaseURL       = "https://api.deepseek.com/v1"
	DefaultAnthropicBaseURL      = "https://api.anthropic.com"
)

// Provider name strings accepted in EMBEDDING_PROVIDER / SUGGESTION_PROVIDER.
const (
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderOllama   = "ollama"
	ProviderGemini   = "gemini"
	ProviderClaude   = "claude"
	ProviderLocal    = "local"
)

// LogFormat represents the log output format.
type LogFormat string

// LogFormat values.
const (
	LogFormatPretty LogFormat = "pretty"
	LogFormatJSON   LogFormat = "json"
)

// GitBackend selects the git plumbing implementation.
type GitBackend string

// GitBackend values.
const (
	GitBackendGoGit GitBackend = "gogit"
	GitBackendGitea GitBackend = "gitea"
)

// Endpoint configures one LLM provider endpoint.
type Endpoint struct {
	baseURL          string
	model            string
	apiKey           string
	timeout          time.Duration
	maxRetries       int
	initialDelay     time.Duration
	backoffFactor    float64
	maxTokens        int
	numParallelTasks int
}

// NewEndpoint creates a new Endpoint with defaults.
func NewEndpoint() Endpoint {
	return Endpoint{
		timeout:          DefaultEndpointTimeout,
		maxRetries:       DefaultEndpointMaxRetries,
		initialDelay:     DefaultEndpointInitialDelay,
		backoffFactor:    DefaultEndpointBackoff,
		maxTokens:        DefaultEndpointMaxTokens,
		numParallelTasks: DefaultEmbeddingParallelism,
	}
}

// BaseURL returns the base URL for the endpoint.
func (e Endpoint) BaseURL() string { return e.baseURL }

// Model returns the model identifier.
func (e Endpoint) Model() string { return e.model }

// APIKey returns the API key.
func (e Endpoint) APIKey() string { return e.apiKey }

// Timeout returns the request timeout.
func (e Endpoint) Timeout() time.Duration { return e.timeout }

// MaxRetries returns the maximum retry count.
func (e Endpoint) MaxRetries() int { return e.maxRetries }

// InitialDelay returns the initial retry delay.
func (e Endpoint) InitialDelay() time.Duration { return e.initialDelay }

// BackoffFactor returns the retry backoff multiplier.
func (e Endpoint) BackoffFactor() float64 { return e.backoffFactor }

// MaxTokens returns the maximum token limit.
func (e Endpoint) MaxTokens() int { return e.maxTokens }

// NumParallelTasks returns the number of parallel embedding tasks.
func (e Endpoint) NumParallelTasks() int { return e.numParallelTasks }

// IsConfigured returns true if the endpoint has an API key or base URL.
func (e Endpoint) IsConfigured() bool {
	return e.apiKey != "" || e.baseURL != ""
}

// EndpointOption is a functional option for Endpoint.
type EndpointOption func(*Endpoint)

// WithBaseURL sets the base URL.
func WithBaseURL(url string) EndpointOption {
	return func(e *Endpoint) { e.baseURL = url }
}

// WithModel sets the model.
func WithModel(model string) EndpointOption {
	return func(e *Endpoint) { e.model = model }
}

// WithAPIKey sets the API key.
func WithAPIKey(key string) EndpointOption {
	return func(e *Endpoint) { e.apiKey = key }
}

// WithTimeout sets the request timeout.
func WithTimeout(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.timeout = d }
}

// WithMaxRetries sets the maximum retry count.
func WithMaxRetries(n int) EndpointOption {
	return func(e *Endpoint) { e.maxRetries = n }
}

// WithInitialDelay sets the initial retry delay.
func WithInitialDelay(d time.Duration) EndpointOption {
	return func(e *Endpoint) { e.initialDelay = d }
}

// WithBackoffFactor sets the retry backoff multiplier.
func WithBackoffFactor(f float64) EndpointOption {
	return func(e *Endpoint) { e.backoffFactor = f }
}

// WithMaxTokens sets the maximum token limit.
func WithMaxTokens(n int) EndpointOption {
	return func(e *Endpoint) { e.maxTokens = n }
}

// WithNumParallelTasks sets the parallel embedding task count.
func WithNumParallelTasks(n int) EndpointOption {
	return func(e *Endpoint) {
		if n > 0 {
			e.numParallelTasks = n
		}
	}
}

// NewEndpointWithOptions creates an Endpoint with functional options.
func NewEndpointWithOptions(opts ...EndpointOption) Endpoint {
	e := NewEndpoint()
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

// AppConfig holds the application configuration.
//
// Every field is fixed after construction except the suggestion
// provider/model pair, which switch_suggestion_model updates at runtime
// behind a RWMutex. Readers of the pair tolerate momentary staleness.
type AppConfig struct {
	repoPath           string
	host               string
	httpPort           int
	dataDir            string
	modelCacheDir      string
	llmHTTPCacheDir    string
	qdrantHost         string
	collectionName     string
	embeddingProvider  string
	embeddingModel     string
	embeddingDimension int

	mu                 sync.RWMutex
	suggestionProvider string
	suggestionModel    string

	openai    Endpoint
	deepseek  Endpoint
	anthropic Endpoint
	gemini    Endpoint
	ollama    Endpoint

	fileChunkSize         int
	fileChunkOverlap      int
	diffChunkSize         int
	diffChunkOverlap      int
	commitHistoryLimit    int
	batchUpsertSize       int
	diffContextLines      int
	maxRefinements        int
	searchLimit           int
	agentDefaultMaxSteps  int
	agentAbsoluteMaxSteps int
	agentQueryTimeout     time.Duration
	maxSnippetLength      int
	maxFilesNoSummary     int
	maxDiffLength         int
	repoSyncInterval      time.Duration
	gitBackend            GitBackend
	logLevel              string
	logFormat             LogFormat
}

// DefaultDataDir returns the default data directory.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codecompass"
	}
	return filepath.Join(home, ".codecompass")
}

// DefaultLogger returns the default slog logger for library consumers.
func DefaultLogger() *slog.Logger {
	return slog.Default()
}

// NewAppConfig creates a new AppConfig with defaults.
func NewAppConfig() *AppConfig {
	return &AppConfig{
		host:                  DefaultHost,
		httpPort:              DefaultHTTPPort,
		dataDir:               DefaultDataDir(),
		qdrantHost:            DefaultQdrantHost,
		collectionName:        DefaultCollectionName,
		embeddingProvider:     DefaultEmbeddingProvider,
		embeddingModel:        DefaultEmbeddingModel,
		embeddingDimension:    DefaultEmbeddingDimension,
		suggestionProvider:    DefaultSuggestionProvider,
		suggestionModel:       DefaultSuggestionModel,
		openai:                NewEndpoint(),
		deepseek:              NewEndpointWithOptions(WithBaseURL(DefaultDeepSeekBaseURL)),
		anthropic:             NewEndpointWithOptions(WithBaseURL(DefaultAnthropicBaseURL)),
		gemini:                NewEndpoint(),
		ollama:                NewEndpointWithOptions(WithBaseURL(DefaultOllamaHost)),
		fileChunkSize:         DefaultFileChunkSize,
		fileChunkOverlap:      DefaultFileChunkOverlap,
		diffChunkSize:         DefaultDiffChunkSize,
		diffChunkOverlap:      DefaultDiffChunkOverlap,
		commitHistoryLimit:    DefaultCommitHistoryLimit,
		batchUpsertSize:       DefaultBatchUpsertSize,
		diffContextLines:      DefaultDiffContextLines,
		maxRefinements:        DefaultMaxRefinements,
		searchLimit:           DefaultSearchLimit,
		agentDefaultMaxSteps:  DefaultAgentMaxSteps,
		agentAbsoluteMaxSteps: DefaultAgentAbsoluteMaxSteps,
		agentQueryTimeout:     DefaultAgentQueryTimeout,
		maxSnippetLength:      DefaultMaxSnippetLength,
		maxFilesNoSummary:     DefaultMaxFilesNoSummary,
		maxDiffLength:         DefaultMaxDiffLength,
		gitBackend:            GitBackendGoGit,
		logLevel:              DefaultLogLevel,
		logFormat:             LogFormatPretty,
	}
}

// RepoPath returns the absolute path of the target repository.
func (c *AppConfig) RepoPath() string { return c.repoPath }

// Host returns the host the utility HTTP server binds to.
func (c *AppConfig) Host() string { return c.host }

// HTTPPort returns the utility HTTP port (0 requests a dynamic port).
func (c *AppConfig) HTTPPort() int { return c.httpPort }

// Addr returns the combined host:port address.
func (c *AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.host, c.httpPort)
}

// DataDir returns the data directory path.
func (c *AppConfig) DataDir() string { return c.dataDir }

// ModelCacheDir returns the directory holding local embedding model files.
func (c *AppConfig) ModelCacheDir() string {
	if c.modelCacheDir != "" {
		return c.modelCacheDir
	}
	return filepath.Join(c.dataDir, DefaultModelSubdir)
}

// LLMHTTPCacheDir returns the directory for on-disk caching of provider
// HTTP responses. Empty disables caching.
func (c *AppConfig) LLMHTTPCacheDir() string { return c.llmHTTPCacheDir }

// QdrantHost returns the Qdrant base URL.
func (c *AppConfig) QdrantHost() string { return c.qdrantHost }

// CollectionName returns the vector collection name.
func (c *AppConfig) CollectionName() string { return c.collectionName }

// EmbeddingProvider returns the embedding provider name.
func (c *AppConfig) EmbeddingProvider() string { return c.embeddingProvider }

// EmbeddingModel returns the embedding model identifier.
func (c *AppConfig) EmbeddingModel() string { return c.embeddingModel }

// EmbeddingDimension returns the vector dimension of the collection.
func (c *AppConfig) EmbeddingDimension() int { return c.embeddingDimension }

// SuggestionProvider returns the current suggestion provider name.
func (c *AppConfig) SuggestionProvider() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.suggestionProvider
}

// SuggestionModel returns the current suggestion model identifier.
func (c *AppConfig) SuggestionModel() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.suggestionModel
}

// SwitchSuggestionModel updates the suggestion model and, when provider is
// non-empty, the suggestion provider. This is the only mutation AppConfig
// supports after startup.
func (c *AppConfig) SwitchSuggestionModel(model, provider string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.suggestionModel = model
	if provider != "" {
		c.suggestionProvider = provider
	}
}

// OpenAI returns the OpenAI endpoint config.
func (c *AppConfig) OpenAI() Endpoint { return c.openai }

// DeepSeek returns the DeepSeek endpoint config.
func (c *AppConfig) DeepSeek() Endpoint { return c.deepseek }

// Anthropic returns the Anthropic endpoint config.
func (c *AppConfig) Anthropic() Endpoint { return c.anthropic }

// Gemini returns the Gemini endpoint config.
func (c *AppConfig) Gemini() Endpoint { return c.gemini }

// Ollama returns the Ollama endpoint config.
func (c *AppConfig) Ollama() Endpoint { return c.ollama }

// Endpoint returns the endpoint config for the named provider.
func (c *AppConfig) Endpoint(provider string) (Endpoint, bool) {
	switch provider {
	case ProviderOpenAI:
		return c.openai, true
	case ProviderDeepSeek:
		return c.deepseek, true
	case ProviderClaude:
		return c.anthropic, true
	case ProviderGemini:
		return c.gemini, true
	case ProviderOllama:
		return c.ollama, true
	case ProviderLocal:
		return NewEndpoint(), true
	default:
		return Endpoint{}, false
	}
}

// FileChunkSize returns the chunk size in characters for file indexing.
func (c *AppConfig) FileChunkSize() int { return c.fileChunkSize }

// FileChunkOverlap returns the chunk overlap for file indexing.
func (c *AppConfig) FileChunkOverlap() int { return c.fileChunkOverlap }

// DiffChunkSize returns the chunk size in characters for diff indexing.
func (c *AppConfig) DiffChunkSize() int { return c.diffChunkSize }

// DiffChunkOverlap returns the chunk overlap for diff indexing.
func (c *AppConfig) DiffChunkOverlap() int { return c.diffChunkOverlap }

// CommitHistoryLimit returns the newest-commit count indexed per run.
func (c *AppConfig) CommitHistoryLimit() int { return c.commitHistoryLimit }

// BatchUpsertSize returns the vector upsert batch size.
func (c *AppConfig) BatchUpsertSize() int { return c.batchUpsertSize }

// DiffContextLines returns the unified-diff context line count.
func (c *AppConfig) DiffContextLines() int { return c.diffContextLines }

// MaxRefinements returns the refinement iteration cap.
func (c *AppConfig) MaxRefinements() int { return c.maxRefinements }

// SearchLimit returns the default vector search result limit.
func (c *AppConfig) SearchLimit() int { return c.searchLimit }

// AgentDefaultMaxSteps returns the initial agent step budget.
func (c *AppConfig) AgentDefaultMaxSteps() int { return c.agentDefaultMaxSteps }

// AgentAbsoluteMaxSteps returns the hard agent step cap.
func (c *AppConfig) AgentAbsoluteMaxSteps() int { return c.agentAbsoluteMaxSteps }

// AgentQueryTimeout returns the wall-clock bound for one agent invocation.
func (c *AppConfig) AgentQueryTimeout() time.Duration { return c.agentQueryTimeout }

// MaxSnippetLength returns the snippet length above which content is
// summarized (model available) or truncated.
func (c *AppConfig) MaxSnippetLength() int { return c.maxSnippetLength }

// MaxFilesNoSummary returns the file count cap for suggestion context when
// no model is available to summarize.
func (c *AppConfig) MaxFilesNoSummary() int { return c.maxFilesNoSummary }

// MaxDiffLength returns the diff length cap for the context tool.
func (c *AppConfig) MaxDiffLength() int { return c.maxDiffLength }

// RepoSyncInterval returns the periodic re-index interval (0 disables).
func (c *AppConfig) RepoSyncInterval() time.Duration { return c.repoSyncInterval }

// GitBackend returns the selected git plumbing implementation.
func (c *AppConfig) GitBackend() GitBackend { return c.gitBackend }

// LogLevel returns the log level.
func (c *AppConfig) LogLevel() string { return c.logLevel }

// LogFormat returns the log format.
func (c *AppConfig) LogFormat() LogFormat { return c.logFormat }

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *AppConfig) EnsureDataDir() error {
	if err := os.MkdirAll(c.dataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}
	return nil
}

// Validate checks settings that make startup impossible when wrong.
func (c *AppConfig) Validate() error {
	if c.repoPath == "" {
		return fmt.Errorf("repository path is required (set REPO_PATH or pass a path argument)")
	}
	if c.httpPort < 0 || c.httpPort > 65535 {
		return fmt.Errorf("invalid HTTP port %d", c.httpPort)
	}
	if c.embeddingDimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", c.embeddingDimension)
	}
	if c.fileChunkOverlap >= c.fileChunkSize {
		return fmt.Errorf("file chunk overlap %d must be smaller than chunk size %d", c.fileChunkOverlap, c.fileChunkSize)
	}
	if c.diffChunkOverlap >= c.diffChunkSize {
		return fmt.Errorf("diff chunk overlap %d must be smaller than chunk size %d", c.diffChunkOverlap, c.diffChunkSize)
	}
	if c.agentDefaultMaxSteps <= 0 || c.agentAbsoluteMaxSteps < c.agentDefaultMaxSteps {
		return fmt.Errorf("agent step budget invalid: default %d, absolute %d", c.agentDefaultMaxSteps, c.agentAbsoluteMaxSteps)
	}
	if _, ok := c.Endpoint(c.embeddingProvider); !ok {
		return fmt.Errorf("unknown embedding provider %q", c.embeddingProvider)
	}
	if _, ok := c.Endpoint(c.SuggestionProvider()); !ok {
		return fmt.Errorf("unknown suggestion provider %q", c.SuggestionProvider())
	}
	switch c.gitBackend {
	case GitBackendGoGit, GitBackendGitea:
	default:
		return fmt.Errorf("unknown git backend %q", c.gitBackend)
	}
	return nil
}

// AppConfigOption is a functional option for AppConfig.
type AppConfigOption func(*AppConfig)

// WithRepoPath sets the target repository path.
func WithRepoPath(path string) AppConfigOption {
	return func(c *AppConfig) { c.repoPath = path }
}

// WithHost sets the utility HTTP host.
func WithHost(host string) AppConfigOption {
	return func(c *AppConfig) { c.host = host }
}

// WithHTTPPort sets the utility HTTP port.
func WithHTTPPort(port int) AppConfigOption {
	return func(c *AppConfig) { c.httpPort = port }
}

// WithDataDir sets the data directory.
func WithDataDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.dataDir = dir }
}

// WithModelCacheDir overrides the local embedding model directory.
func WithModelCacheDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.modelCacheDir = dir }
}

// WithLLMHTTPCacheDir enables on-disk caching of provider HTTP responses.
func WithLLMHTTPCacheDir(dir string) AppConfigOption {
	return func(c *AppConfig) { c.llmHTTPCacheDir = dir }
}

// WithQdrantHost sets the Qdrant base URL.
func WithQdrantHost(url string) AppConfigOption {
	return func(c *AppConfig) { c.qdrantHost = url }
}

// WithCollectionName sets the vector collection name.
func WithCollectionName(name string) AppConfigOption {
	return func(c *AppConfig) { c.collectionName = name }
}

// WithEmbeddingProvider sets the embedding provider.
func WithEmbeddingProvider(name string) AppConfigOption {
	return func(c *AppConfig) { c.embeddingProvider = name }
}

// WithEmbeddingModel sets the embedding model.
func WithEmbeddingModel(model string) AppConfigOption {
	return func(c *AppConfig) { c.embeddingModel = model }
}

// WithEmbeddingDimension sets the vector dimension.
func WithEmbeddingDimension(n int) AppConfigOption {
	return func(c *AppConfig) { c.embeddingDimension = n }
}

// WithSuggestionProvider sets the initial suggestion provider.
func WithSuggestionProvider(name string) AppConfigOption {
	return func(c *AppConfig) { c.suggestionProvider = name }
}

// WithSuggestionModel sets the initial suggestion model.
func WithSuggestionModel(model string) AppConfigOption {
	return func(c *AppConfig) { c.suggestionModel = model }
}

// WithOpenAIEndpoint sets the OpenAI endpoint.
func WithOpenAIEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.openai = e }
}

// WithDeepSeekEndpoint sets the DeepSeek endpoint.
func WithDeepSeekEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.deepseek = e }
}

// WithAnthropicEndpoint sets the Anthropic endpoint.
func WithAnthropicEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.anthropic = e }
}

// WithGeminiEndpoint sets the Gemini endpoint.
func WithGeminiEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.gemini = e }
}

// WithOllamaEndpoint sets the Ollama endpoint.
func WithOllamaEndpoint(e Endpoint) AppConfigOption {
	return func(c *AppConfig) { c.ollama = e }
}

// WithFileChunking sets the file chunk size and overlap.
func WithFileChunking(size, overlap int) AppConfigOption {
	return func(c *AppConfig) {
		c.fileChunkSize = size
		c.fileChunkOverlap = overlap
	}
}

// WithDiffChunking sets the diff chunk size and overlap.
func WithDiffChunking(size, overlap int) AppConfigOption {
	return func(c *AppConfig) {
		c.diffChunkSize = size
		c.diffChunkOverlap = overlap
	}
}

// WithCommitHistoryLimit sets the indexed commit count.
func WithCommitHistoryLimit(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.commitHistoryLimit = n
		}
	}
}

// WithBatchUpsertSize sets the upsert batch size.
func WithBatchUpsertSize(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.batchUpsertSize = n
		}
	}
}

// WithDiffContextLines sets the unified-diff context width.
func WithDiffContextLines(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n >= 0 {
			c.diffContextLines = n
		}
	}
}

// WithMaxRefinements sets the refinement iteration cap.
func WithMaxRefinements(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n >= 0 {
			c.maxRefinements = n
		}
	}
}

// WithSearchLimit sets the default search result limit.
func WithSearchLimit(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.searchLimit = n
		}
	}
}

// WithAgentSteps sets the agent step budgets.
func WithAgentSteps(defaultMax, absoluteMax int) AppConfigOption {
	return func(c *AppConfig) {
		c.agentDefaultMaxSteps = defaultMax
		c.agentAbsoluteMaxSteps = absoluteMax
	}
}

// WithAgentQueryTimeout sets the agent invocation wall-clock bound.
func WithAgentQueryTimeout(d time.Duration) AppConfigOption {
	return func(c *AppConfig) {
		if d > 0 {
			c.agentQueryTimeout = d
		}
	}
}

// WithMaxSnippetLength sets the snippet summarize/truncate threshold.
func WithMaxSnippetLength(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.maxSnippetLength = n
		}
	}
}

// WithMaxFilesNoSummary sets the unsummarized suggestion-context file cap.
func WithMaxFilesNoSummary(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.maxFilesNoSummary = n
		}
	}
}

// WithMaxDiffLength sets the diff length cap for the context tool.
func WithMaxDiffLength(n int) AppConfigOption {
	return func(c *AppConfig) {
		if n > 0 {
			c.maxDiffLength = n
		}
	}
}

// WithRepoSyncInterval sets the periodic re-index interval (0 disables).
func WithRepoSyncInterval(d time.Duration) AppConfigOption {
	return func(c *AppConfig) { c.repoSyncInterval = d }
}

// WithGitBackend selects the git plumbing implementation.
func WithGitBackend(b GitBackend) AppConfigOption {
	return func(c *AppConfig) { c.gitBackend = b }
}

// WithLogLevel sets the log level.
func WithLogLevel(level string) AppConfigOption {
	return func(c *AppConfig) { c.logLevel = level }
}

// WithLogFormat sets the log format.
func WithLogFormat(format LogFormat) AppConfigOption {
	return func(c *AppConfig) { c.logFormat = format }
}

// NewAppConfigWithOptions creates an AppConfig with functional options.
func NewAppConfigWithOptions(opts ...AppConfigOption) *AppConfig {
	c := NewAppConfig()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Apply applies the options to the configuration and returns it, so
// callers can layer overrides on a loaded configuration.
func (c *AppConfig) Apply(opts ...AppConfigOption) *AppConfig {
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LogAttrs returns slog attributes for logging the configuration.
// API keys are masked.
func (c *AppConfig) LogAttrs() []slog.Attr {
	return []slog.Attr{
		slog.String("repo_path", c.repoPath),
		slog.String("addr", c.Addr()),
		slog.String("qdrant_host", c.qdrantHost),
		slog.String("collection", c.collectionName),
		slog.String("embedding_provider", c.embeddingProvider),
		slog.String("embedding_model", c.embeddingModel),
		slog.Int("embedding_dimension", c.embeddingDimension),
		slog.String("suggestion_provider", c.SuggestionProvider()),
		slog.String("suggestion_model", c.SuggestionModel()),
		slog.String("git_backend", string(c.gitBackend)),
		slog.String("openai_key", maskKey(c.openai.apiKey)),
		slog.String("deepseek_key", maskKey(c.deepseek.apiKey)),
		slog.String("anthropic_key", maskKey(c.anthropic.apiKey)),
		slog.String("gemini_key", maskKey(c.gemini.apiKey)),
		slog.Duration("repo_sync_interval", c.repoSyncInterval),
		slog.String("log_level", c.logLevel),
	}
}

func maskKey(key string) string {
	if key == "" {
		return "(not set)"
	}
	if len(key) <= 8 {
		return "****"
	}
	return key[:4] + "..." + key[len(key)-4:]
}

// ParseProviderList parses a comma-separated provider list.
func ParseProviderList(s string) []string {
	if s == "" {
		return []string{}
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
