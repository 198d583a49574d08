// Package config provides application configuration.
package config

import (
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvConfig holds all environment-based configuration.
// Field names map to flat environment variables (no prefix).
type EnvConfig struct {
	// RepoPath is the absolute path of the repository to serve.
	// Env: REPO_PATH
	RepoPath string `envconfig:"REPO_PATH"`

	// Host is the utility HTTP host to bind to.
	// Env: HOST (default: 127.0.0.1)
	Host string `envconfig:"HOST" default:"127.0.0.1"`

	// HTTPPort is the utility HTTP port. Zero requests a dynamic port.
	// Env: HTTP_PORT (default: 3001)
	HTTPPort int `envconfig:"HTTP_PORT" default:"3001"`

	// DataDir is the data directory path (model cache, logs).
	// Env: DATA_DIR
	// Default: ~/.codecompass
	DataDir string `envconfig:"DATA_DIR"`

	// QdrantHost is the Qdrant base URL.
	// Env: QDRANT_HOST (default: http://localhost:6333)
	QdrantHost string `envconfig:"QDRANT_HOST" default:"http://localhost:6333"`

	// CollectionName is the vector collection name.
	// Env: COLLECTION_NAME (default: codecompass)
	CollectionName string `envconfig:"COLLECTION_NAME" default:"codecompass"`

	// EmbeddingProvider selects the embedding backend
	// (openai, deepseek, ollama, gemini, local).
	// Env: EMBEDDING_PROVIDER (default: ollama)
	EmbeddingProvider string `envconfig:"EMBEDDING_PROVIDER" default:"ollama"`

	// EmbeddingModel is the embedding model identifier.
	// Env: EMBEDDING_MODEL (default: nomic-embed-text:v1.5)
	EmbeddingModel string `envconfig:"EMBEDDING_MODEL" default:"nomic-embed-text:v1.5"`

	// EmbeddingDimension is the vector dimension of the collection.
	// Env: EMBEDDING_DIMENSION (default: 768)
	EmbeddingDimension int `envconfig:"EMBEDDING_DIMENSION" default:"768"`

	// SuggestionProvider selects the text generation backend
	// (openai, deepseek, ollama, gemini, claude).
	// Env: SUGGESTION_PROVIDER (default: ollama)
	SuggestionProvider string `envconfig:"SUGGESTION_PROVIDER" default:"ollama"`

	// SuggestionModel is the text generation model identifier.
	// Env: SUGGESTION_MODEL (default: llama3.1:8b)
	SuggestionModel string `envconfig:"SUGGESTION_MODEL" default:"llama3.1:8b"`

	// OpenAI configures the OpenAI endpoint.
	OpenAI EndpointEnv `envconfig:"OPENAI"`

	// DeepSeek configures the DeepSeek endpoint.
	DeepSeek EndpointEnv `envconfig:"DEEPSEEK"`

	// Anthropic configures the Anthropic endpoint.
	Anthropic EndpointEnv `envconfig:"ANTHROPIC"`

	// Gemini configures the Gemini endpoint.
	Gemini EndpointEnv `envconfig:"GEMINI"`

	// OllamaHost is the Ollama server URL.
	// Env: OLLAMA_HOST (default: http://localhost:11434)
	OllamaHost string `envconfig:"OLLAMA_HOST" default:"http://localhost:11434"`

	// FileChunkSize is the chunk size in characters for file indexing.
	// Env: FILE_INDEXING_CHUNK_SIZE_CHARS (default: 1000)
	FileChunkSize int `envconfig:"FILE_INDEXING_CHUNK_SIZE_CHARS" default:"1000"`

	// FileChunkOverlap is the chunk overlap for file indexing.
	// Env: FILE_INDEXING_CHUNK_OVERLAP_CHARS (default: 200)
	FileChunkOverlap int `envconfig:"FILE_INDEXING_CHUNK_OVERLAP_CHARS" default:"200"`

	// DiffChunkSize is the chunk size in characters for diff indexing.
	// Env: DIFF_CHUNK_SIZE_CHARS (default: 1500)
	DiffChunkSize int `envconfig:"DIFF_CHUNK_SIZE_CHARS" default:"1500"`

	// DiffChunkOverlap is the chunk overlap for diff indexing.
	// Env: DIFF_CHUNK_OVERLAP_CHARS (default: 200)
	DiffChunkOverlap int `envconfig:"DIFF_CHUNK_OVERLAP_CHARS" default:"200"`

	// CommitHistoryLimit caps how many newest commits are indexed per run.
	// Env: COMMIT_HISTORY_MAX_COUNT_FOR_INDEXING (default: 50)
	CommitHistoryLimit int `envconfig:"COMMIT_HISTORY_MAX_COUNT_FOR_INDEXING" default:"50"`

	// BatchUpsertSize is the vector upsert batch size.
	// Env: QDRANT_BATCH_UPSERT_SIZE (default: 100)
	BatchUpsertSize int `envconfig:"QDRANT_BATCH_UPSERT_SIZE" default:"100"`

	// DiffContextLines is the unified-diff context line count.
	// Env: DIFF_LINES_OF_CONTEXT (default: 3)
	DiffContextLines int `envconfig:"DIFF_LINES_OF_CONTEXT" default:"3"`

	// MaxRefinements caps retrieval refinement iterations.
	// Env: MAX_REFINEMENT_ITERATIONS (default: 3)
	MaxRefinements int `envconfig:"MAX_REFINEMENT_ITERATIONS" default:"3"`

	// SearchLimit is the default vector search result limit.
	// Env: QDRANT_SEARCH_LIMIT_DEFAULT (default: 10)
	SearchLimit int `envconfig:"QDRANT_SEARCH_LIMIT_DEFAULT" default:"10"`

	// AgentDefaultMaxSteps is the initial agent step budget.
	// Env: AGENT_DEFAULT_MAX_STEPS (default: 5)
	AgentDefaultMaxSteps int `envconfig:"AGENT_DEFAULT_MAX_STEPS" default:"5"`

	// AgentAbsoluteMaxSteps is the hard agent step cap.
	// Env: AGENT_ABSOLUTE_MAX_STEPS (default: 10)
	AgentAbsoluteMaxSteps int `envconfig:"AGENT_ABSOLUTE_MAX_STEPS" default:"10"`

	// AgentQueryTimeout bounds one agent invocation, in seconds.
	// Env: AGENT_QUERY_TIMEOUT (default: 180)
	AgentQueryTimeout float64 `envconfig:"AGENT_QUERY_TIMEOUT" default:"180"`

	// MaxSnippetLength is the snippet summarize/truncate threshold.
	// Env: MAX_SNIPPET_LENGTH_FOR_CONTEXT_NO_SUMMARY (default: 1500)
	MaxSnippetLength int `envconfig:"MAX_SNIPPET_LENGTH_FOR_CONTEXT_NO_SUMMARY" default:"1500"`

	// MaxFilesNoSummary caps suggestion-context files when no model can
	// summarize.
	// Env: MAX_FILES_FOR_SUGGESTION_CONTEXT_NO_SUMMARY (default: 5)
	MaxFilesNoSummary int `envconfig:"MAX_FILES_FOR_SUGGESTION_CONTEXT_NO_SUMMARY" default:"5"`

	// MaxDiffLength caps diff text returned by the context tool.
	// Env: MAX_DIFF_LENGTH_FOR_CONTEXT_TOOL (default: 3000)
	MaxDiffLength int `envconfig:"MAX_DIFF_LENGTH_FOR_CONTEXT_TOOL" default:"3000"`

	// RepoSyncInterval is the periodic re-index interval in seconds.
	// Zero disables periodic re-indexing.
	// Env: REPO_SYNC_INTERVAL (default: 0)
	RepoSyncInterval float64 `envconfig:"REPO_SYNC_INTERVAL" default:"0"`

	// GitBackend selects the git plumbing implementation (gogit or gitea).
	// Env: GIT_BACKEND (default: gogit)
	GitBackend string `envconfig:"GIT_BACKEND" default:"gogit"`

	// ModelCacheDir overrides the local embedding model directory.
	// Env: MODEL_CACHE_DIR
	// Default: {data_dir}/models
	ModelCacheDir string `envconfig:"MODEL_CACHE_DIR"`

	// LLMHTTPCacheDir enables on-disk caching of provider HTTP responses
	// when set. Intended for development and offline test runs.
	// Env: LLM_HTTP_CACHE_DIR
	LLMHTTPCacheDir string `envconfig:"LLM_HTTP_CACHE_DIR"`

	// LogLevel is the log verbosity level.
	// Env: LOG_LEVEL (default: INFO)
	LogLevel string `envconfig:"LOG_LEVEL" default:"INFO"`

	// LogFormat is the log output format (pretty or json).
	// Env: LOG_FORMAT (default: pretty)
	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
}

// EndpointEnv holds environment configuration for one provider endpoint.
type EndpointEnv struct {
	// BaseURL overrides the provider base URL.
	// Env: *_BASE_URL
	BaseURL string `envconfig:"BASE_URL"`

	// APIKey is the API key for authentication.
	// Env: *_API_KEY
	APIKey string `envconfig:"API_KEY"`

	// Timeout is the request timeout in seconds.
	// Env: *_TIMEOUT (default: 60)
	Timeout float64 `envconfig:"TIMEOUT" default:"60"`

	// MaxRetries is the maximum number of retries.
	// Env: *_MAX_RETRIES (default: 5)
	MaxRetries int `envconfig:"MAX_RETRIES" default:"5"`

	// InitialDelay is the initial retry delay in seconds.
	// Env: *_INITIAL_DELAY (default: 2.0)
	InitialDelay float64 `envconfig:"INITIAL_DELAY" default:"2.0"`

	// BackoffFactor is the retry backoff multiplier.
	// Env: *_BACKOFF_FACTOR (default: 2.0)
	BackoffFactor float64 `envconfig:"BACKOFF_FACTOR" default:"2.0"`

	// MaxTokens is the maximum token limit for generation.
	// Env: *_MAX_TOKENS (default: 4000)
	MaxTokens int `envconfig:"MAX_TOKENS" default:"4000"`

	// NumParallelTasks is the number of parallel embedding tasks.
	// Env: *_NUM_PARALLEL_TASKS (default: 4)
	NumParallelTasks int `envconfig:"NUM_PARALLEL_TASKS" default:"4"`
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// LoadFromEnvWithPrefix loads configuration with a custom prefix.
// For example, prefix "CODECOMPASS" would require CODECOMPASS_REPO_PATH
// instead of REPO_PATH.
func LoadFromEnvWithPrefix(prefix string) (EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(prefix, &cfg); err != nil {
		return EnvConfig{}, err
	}
	return cfg, nil
}

// ToAppConfig converts EnvConfig to AppConfig.
func (e EnvConfig) ToAppConfig() *AppConfig {
	opts := []AppConfigOption{
		WithRepoPath(e.RepoPath),
		WithHTTPPort(e.HTTPPort),
		WithFileChunking(e.FileChunkSize, e.FileChunkOverlap),
		WithDiffChunking(e.DiffChunkSize, e.DiffChunkOverlap),
		WithCommitHistoryLimit(e.CommitHistoryLimit),
		WithBatchUpsertSize(e.BatchUpsertSize),
		WithDiffContextLines(e.DiffContextLines),
		WithMaxRefinements(e.MaxRefinements),
		WithSearchLimit(e.SearchLimit),
		WithAgentSteps(e.AgentDefaultMaxSteps, e.AgentAbsoluteMaxSteps),
		WithAgentQueryTimeout(time.Duration(e.AgentQueryTimeout * float64(time.Second))),
		WithMaxSnippetLength(e.MaxSnippetLength),
		WithMaxFilesNoSummary(e.MaxFilesNoSummary),
		WithMaxDiffLength(e.MaxDiffLength),
		WithRepoSyncInterval(time.Duration(e.RepoSyncInterval * float64(time.Second))),
	}

	if e.Host != "" {
		opts = append(opts, WithHost(e.Host))
	}
	if e.DataDir != "" {
		opts = append(opts, WithDataDir(e.DataDir))
	}
	if e.QdrantHost != "" {
		opts = append(opts, WithQdrantHost(e.QdrantHost))
	}
	if e.CollectionName != "" {
		opts = append(opts, WithCollectionName(e.CollectionName))
	}
	if e.EmbeddingProvider != "" {
		opts = append(opts, WithEmbeddingProvider(strings.ToLower(e.EmbeddingProvider)))
	}
	if e.EmbeddingModel != "" {
		opts = append(opts, WithEmbeddingModel(e.EmbeddingModel))
	}
	if e.EmbeddingDimension > 0 {
		opts = append(opts, WithEmbeddingDimension(e.EmbeddingDimension))
	}
	if e.SuggestionProvider != "" {
		opts = append(opts, WithSuggestionProvider(strings.ToLower(e.SuggestionProvider)))
	}
	if e.SuggestionModel != "" {
		opts = append(opts, WithSuggestionModel(e.SuggestionModel))
	}
	if e.GitBackend != "" {
		opts = append(opts, WithGitBackend(GitBackend(strings.ToLower(e.GitBackend))))
	}
	if e.LogLevel != "" {
		opts = append(opts, WithLogLevel(e.LogLevel))
	}
	if e.LogFormat != "" {
		opts = append(opts, WithLogFormat(parseLogFormat(e.LogFormat)))
	}

	opts = append(opts,
		WithOpenAIEndpoint(e.OpenAI.ToEndpoint("")),
		WithDeepSeekEndpoint(e.DeepSeek.ToEndpoint(DefaultDeepSeekBaseURL)),
		WithAnthropicEndpoint(e.Anthropic.ToEndpoint(DefaultAnthropicBaseURL)),
		WithGeminiEndpoint(e.Gemini.ToEndpoint("")),
		WithOllamaEndpoint(NewEndpointWithOptions(WithBaseURL(firstNonEmpty(e.OllamaHost, DefaultOllamaHost)))),
	)

	if e.ModelCacheDir != "" {
		opts = append(opts, WithModelCacheDir(e.ModelCacheDir))
	}
	if e.LLMHTTPCacheDir != "" {
		opts = append(opts, WithLLMHTTPCacheDir(e.LLMHTTPCacheDir))
	}

	return NewAppConfigWithOptions(opts...)
}

// ToEndpoint converts EndpointEnv to Endpoint, with a fallback base URL.
func (e EndpointEnv) ToEndpoint(defaultBaseURL string) Endpoint {
	opts := []EndpointOption{
		WithTimeout(time.Duration(e.Timeout * float64(time.Second))),
		WithMaxRetries(e.MaxRetries),
		WithInitialDelay(time.Duration(e.InitialDelay * float64(time.Second))),
		WithBackoffFactor(e.BackoffFactor),
		WithMaxTokens(e.MaxTokens),
		WithNumParallelTasks(e.NumParallelTasks),
	}

	switch {
	case e.BaseURL != "":
		opts = append(opts, WithBaseURL(e.BaseURL))
	case defaultBaseURL != "":
		opts = append(opts, WithBaseURL(defaultBaseURL))
	}
	if e.APIKey != "" {
		opts = append(opts, WithAPIKey(e.APIKey))
	}

	return NewEndpointWithOptions(opts...)
}

// parseLogFormat parses a log format string.
func parseLogFormat(s string) LogFormat {
	switch strings.ToLower(s) {
	case "json":
		return LogFormatJSON
	default:
		return LogFormatPretty
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
