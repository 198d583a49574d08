// Package codecompass provides a local code-intelligence server as a library.
//
// CodeCompass indexes a Git repository — file content, commit metadata, and
// per-file diffs — into a Qdrant collection and answers questions about the
// code through semantic search with bounded query refinement, optionally
// synthesized by an LLM. The same tool surface is exposed to editors over
// the Model Context Protocol.
//
// Basic usage:
//
//	client, err := codecompass.New(
//	    codecompass.WithRepoPath("/path/to/repo"),
//	    codecompass.WithQdrantHost("http://localhost:6333"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Index the repository in the background
//	if err := client.Indexer.Trigger(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// Semantic search with refinement
//	result, err := client.Retriever.SearchWithRefinement(ctx, "where are sessions created?")
//
//	// Serve MCP over stdio
//	if err := client.ServeMCP(); err != nil {
//	    log.Fatal(err)
//	}
package codecompass

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codecompass/codecompass/application/handler/indexing"
	"github.com/codecompass/codecompass/application/service"
	"github.com/codecompass/codecompass/application/tools"
	domainservice "github.com/codecompass/codecompass/domain/service"
	"github.com/codecompass/codecompass/infrastructure/chunking"
	"github.com/codecompass/codecompass/infrastructure/git"
	"github.com/codecompass/codecompass/infrastructure/provider"
	"github.com/codecompass/codecompass/infrastructure/qdrant"
	"github.com/codecompass/codecompass/infrastructure/tracking"
	"github.com/codecompass/codecompass/internal/config"
	"github.com/codecompass/codecompass/internal/mcp"
)

// Version is reported by the ping endpoint, the version resource, and
// the CLI.
const Version = "0.3.0"

// reporterCooldown limits how often progress updates reach the log.
const reporterCooldown = time.Second

// Client is the main entry point for the codecompass library.
// Periodic re-indexing starts automatically on creation when a sync
// interval is configured.
//
// Access services via struct fields:
//
//	client.Indexer.Trigger(ctx)
//	client.Retriever.SearchWithRefinement(ctx, "query")
//	client.Tools.Dispatch(ctx, "search_code", args)
type Client struct {
	// Public service fields (direct access)
	Retriever *service.Retriever
	Indexer   *service.Indexer
	Agent     *service.Agent
	Sessions  *service.SessionStore
	Tools     *tools.Registry

	cfg        *config.AppConfig
	store      domainservice.VectorStore
	factory    *provider.Factory
	generators domainservice.TextGeneratorSource
	inspector  domainservice.Inspector
	monitor    *tracking.Monitor

	mcpServer    *mcp.Server
	periodicSync *service.PeriodicSync
	closers      []io.Closer

	logger *slog.Logger
	closed atomic.Bool
	mu     sync.Mutex
}

// New creates a new Client with the given options. Periodic re-indexing
// is started automatically when enabled; indexing itself starts on the
// first Trigger.
func New(opts ...Option) (*Client, error) {
	cfg := newClientConfig()

	for _, opt := range opts {
		opt(cfg)
	}

	// Resolve the application configuration: defaults, optionally the
	// environment, then per-option overrides.
	var appCfg *config.AppConfig
	if cfg.fromEnv {
		loaded, err := config.LoadConfig(cfg.envFile)
		if err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
		appCfg = loaded
	} else {
		appCfg = config.NewAppConfig()
	}
	appCfg.Apply(cfg.configOpts...)

	if appCfg.RepoPath() == "" {
		return nil, ErrNoRepository
	}
	repoPath, err := filepath.Abs(appCfg.RepoPath())
	if err != nil {
		return nil, fmt.Errorf("resolve repository path: %w", err)
	}
	appCfg.Apply(config.WithRepoPath(repoPath))

	if err := appCfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := appCfg.EnsureDataDir(); err != nil {
		return nil, err
	}

	logger := cfg.logger
	if logger == nil {
		logger = config.DefaultLogger()
	}

	ctx := context.Background()

	// Vector store. A mismatched collection configuration is fatal here;
	// transient reachability problems are retried inside the client.
	store := cfg.store
	if store == nil {
		store = qdrant.NewClient(
			appCfg.QdrantHost(),
			appCfg.CollectionName(),
			appCfg.EmbeddingDimension(),
			qdrant.WithBatchSize(appCfg.BatchUpsertSize()),
		)
	}
	if err := store.Initialize(ctx); err != nil {
		return nil, fmt.Errorf("initialize vector store: %w", err)
	}

	// Git inspector, per the configured backend.
	inspector := cfg.inspector
	if inspector == nil {
		switch appCfg.GitBackend() {
		case config.GitBackendGitea:
			gi, err := git.NewGiteaInspector(repoPath, appCfg.DiffContextLines(), appCfg.MaxDiffLength(), logger)
			if err != nil {
				return nil, fmt.Errorf("gitea git backend: %w", err)
			}
			inspector = gi
		default:
			inspector = git.NewGoGitInspector(repoPath, appCfg.DiffContextLines(), appCfg.MaxDiffLength(), logger)
		}
	}

	// Providers. The factory resolves embedding and suggestion clients
	// from the live configuration, so a runtime model switch only needs
	// the cache cleared.
	factory := provider.NewFactory(appCfg, logger)

	generators := cfg.generators
	if generators == nil {
		generators = factory
	}
	checker := cfg.checker
	if checker == nil {
		checker = factory
	}
	embedder := cfg.embedder
	if embedder == nil {
		embedder, err = factory.Embedder(ctx)
		if err != nil {
			return nil, fmt.Errorf("embedding provider: %w", err)
		}
	}

	// Progress tracking. Log output is throttled so per-file updates do
	// not flood the log; the cooldown is flushed on close.
	monitor := tracking.NewMonitor(logger)
	logCooldown := tracking.NewCooldown(tracking.NewLoggingReporter(logger), reporterCooldown)
	monitor.Subscribe(logCooldown)
	closers := append(cfg.closers, logCooldown)

	parallelism := 1
	if ep, ok := appCfg.Endpoint(appCfg.EmbeddingProvider()); ok {
		parallelism = ep.NumParallelTasks()
	}

	// Indexing pipeline stages.
	pruner := indexing.NewStalePruner(store, logger)
	fileStage := indexing.NewFileIndexer(
		repoPath,
		embedder,
		store,
		chunking.ChunkParams{Size: appCfg.FileChunkSize(), Overlap: appCfg.FileChunkOverlap()},
		appCfg.BatchUpsertSize(),
		parallelism,
		logger,
	)
	commitStage := indexing.NewCommitIndexer(
		repoPath,
		inspector,
		embedder,
		store,
		chunking.ChunkParams{Size: appCfg.DiffChunkSize(), Overlap: appCfg.DiffChunkOverlap()},
		appCfg.CommitHistoryLimit(),
		appCfg.BatchUpsertSize(),
		logger,
	)

	client := &Client{
		cfg:        appCfg,
		store:      store,
		factory:    factory,
		generators: generators,
		inspector:  inspector,
		monitor:    monitor,
		closers:    closers,
		logger:     logger,
	}

	// Application services share the client's closed flag so operations
	// fail fast after Close.
	client.Sessions = service.NewSessionStore(logger)
	client.Retriever = service.NewRetriever(store, embedder, appCfg.SearchLimit(), appCfg.MaxRefinements(), &client.closed, logger)
	client.Indexer = service.NewIndexer(inspector, monitor, pruner, fileStage, commitStage, &client.closed, logger)

	// The registry and the agent reference each other: tools dispatch
	// through the registry, and the agent_query tool runs the agent. The
	// handle breaks the cycle by resolving the agent after both exist.
	handle := &agentHandle{}
	client.Tools = tools.NewRegistry(tools.Deps{
		Config:     appCfg,
		Sessions:   client.Sessions,
		Retriever:  client.Retriever,
		Store:      store,
		Diffs:      inspector,
		Generators: generators,
		Indexer:    client.Indexer,
		Agent:      handle,
		Cache:      factory,
		Logger:     logger,
	})
	client.Agent = service.NewAgent(
		generators,
		checker,
		client.Tools,
		client.Sessions,
		repoPath,
		appCfg.AgentDefaultMaxSteps(),
		appCfg.AgentAbsoluteMaxSteps(),
		&client.closed,
		logger,
	)
	handle.agent = client.Agent

	client.mcpServer = mcp.NewServer(client.Tools, store, client.Indexer, inspector, repoPath, Version, logger)

	client.periodicSync = service.NewPeriodicSync(client.Indexer, appCfg.RepoSyncInterval(), logger)
	client.periodicSync.Start(ctx)

	return client, nil
}

// Close stops background work and releases all resources. Subsequent
// operations on the client return ErrClientClosed.
func (c *Client) Close() error {
	if !c.closed.CompareAndSwap(false, true) {
		return ErrClientClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.periodicSync.Stop()
	c.Indexer.Stop()

	// Drop cached providers; local inference sessions close with them.
	c.factory.ClearCache()

	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			c.logger.Error("failed to close resource", slog.Any("error", err))
		}
	}

	c.logger.Info("codecompass client closed")
	return nil
}

// ServeMCP serves the Model Context Protocol over stdin/stdout until the
// client disconnects.
func (c *Client) ServeMCP() error {
	return c.mcpServer.ServeStdio()
}

// MCPHandler returns the streamable HTTP handler for the MCP endpoint,
// for mounting on the utility HTTP server.
func (c *Client) MCPHandler() http.Handler {
	return c.mcpServer.HTTPHandler()
}

// Addr returns the configured utility HTTP address (host:port).
func (c *Client) Addr() string {
	return c.cfg.Addr()
}

// RepoPath returns the absolute path of the indexed repository.
func (c *Client) RepoPath() string {
	return c.cfg.RepoPath()
}

// Logger returns the client's logger.
func (c *Client) Logger() *slog.Logger {
	return c.logger
}

// agentHandle defers agent resolution: the registry is built before the
// agent because the agent dispatches through the registry.
type agentHandle struct {
	agent *service.Agent
}

func (h *agentHandle) Query(ctx context.Context, query, sessionID string) (string, error) {
	if h.agent == nil {
		return "", fmt.Errorf("agent not initialized")
	}
	return h.agent.Query(ctx, query, sessionID)
}
