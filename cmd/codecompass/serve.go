package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codecompass/codecompass"
	"github.com/codecompass/codecompass/infrastructure/api"
	"github.com/codecompass/codecompass/internal/config"
	"github.com/codecompass/codecompass/internal/log"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var (
		envFile string
		host    string
		port    int
		relay   bool
	)

	cmd := &cobra.Command{
		Use:   "serve [repo-path]",
		Short: "Index a repository and serve it over MCP and HTTP",
		Long: `Index a Git repository and serve it over the Model Context Protocol.

The MCP transport runs on stdio: stdout carries only protocol frames and
all logs go to stderr. A utility HTTP server exposes liveness, indexing
progress, a re-index trigger, and the same MCP surface for HTTP clients.

The repository path comes from the positional argument or REPO_PATH.

Configuration is loaded in the following order (later sources override earlier):
  1. Default values
  2. .env file (if --env-file specified or .env exists in current directory)
  3. Environment variables
  4. Command line flags

Environment variables:
  REPO_PATH                    Repository to index and serve
  HOST                         Utility HTTP host (default: 127.0.0.1)
  HTTP_PORT                    Utility HTTP port, 0 = dynamic (default: 3001)
  DATA_DIR                     Data directory (default: ~/.codecompass)
  QDRANT_HOST                  Qdrant base URL (default: http://localhost:6333)
  COLLECTION_NAME              Vector collection name (default: codecompass)
  LOG_LEVEL                    Log level: DEBUG, INFO, WARN, ERROR (default: INFO)
  LOG_FORMAT                   Log format: pretty, json (default: pretty)

  EMBEDDING_PROVIDER           openai, deepseek, ollama, gemini, local (default: ollama)
  EMBEDDING_MODEL              Embedding model (default: nomic-embed-text:v1.5)
  EMBEDDING_DIMENSION          Collection vector dimension (default: 768)
  SUGGESTION_PROVIDER          openai, deepseek, ollama, gemini, claude (default: ollama)
  SUGGESTION_MODEL             Suggestion model (default: llama3.1:8b)

  OPENAI_*, DEEPSEEK_*, ANTHROPIC_*, GEMINI_*  Provider endpoint configuration
    BASE_URL                   Base URL override
    API_KEY                    API key for authentication
    TIMEOUT                    Request timeout in seconds (default: 60)
    MAX_RETRIES                Retry attempts (default: 5)
    NUM_PARALLEL_TASKS         Concurrent embedding requests (default: 4)
  OLLAMA_HOST                  Ollama server URL (default: http://localhost:11434)

  FILE_INDEXING_CHUNK_SIZE_CHARS         File chunk size (default: 1000)
  FILE_INDEXING_CHUNK_OVERLAP_CHARS      File chunk overlap (default: 200)
  COMMIT_HISTORY_MAX_COUNT_FOR_INDEXING  Newest commits indexed per run (default: 50)
  REPO_SYNC_INTERVAL                     Periodic re-index in seconds, 0 = off (default: 0)
  GIT_BACKEND                            Git library: gogit, gitea (default: gogit)`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			repoPath := ""
			if len(args) > 0 {
				repoPath = args[0]
			}
			return runServe(repoPath, envFile, host, port, relay)
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", "", "Path to .env file (default: .env in current directory)")
	cmd.Flags().StringVar(&host, "host", "", "Utility HTTP host to bind to (default: 127.0.0.1)")
	cmd.Flags().IntVar(&port, "port", 0, "Utility HTTP port to listen on (default: 3001)")
	cmd.Flags().BoolVar(&relay, "relay", false, "Proxy to an already-running instance instead of exiting when it holds the port")

	return cmd
}

func runServe(repoPath, envFile, host string, port int, relayEnabled bool) error {
	cfg, err := config.LoadConfig(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg = applyServeOverrides(cfg, repoPath, host, port)

	logger := log.Configure(cfg)
	slogger := logger.Slog()

	// Holding the utility port is the single-instance lock. Bind it
	// before any indexing work starts so a second instance defers
	// without touching the vector store.
	addr := cfg.Addr()
	server := api.NewServer(addr, slogger)
	if err := server.Listen(); err != nil {
		if api.IsAddrInUse(err) {
			return deferToPeer(cfg.Host(), addr, relayEnabled, slogger)
		}
		return err
	}

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting codecompass", attrs...)

	opts := []codecompass.Option{
		codecompass.WithEnv(envFile),
		codecompass.WithLogger(slogger),
	}
	if repoPath != "" {
		opts = append(opts, codecompass.WithRepoPath(repoPath))
	}
	if host != "" {
		opts = append(opts, codecompass.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, codecompass.WithHTTPPort(port))
	}

	client, err := codecompass.New(opts...)
	if err != nil {
		_ = server.Shutdown(context.Background())
		return fmt.Errorf("create codecompass client: %w", err)
	}
	defer func() {
		if err := client.Close(); err != nil && !errors.Is(err, codecompass.ErrClientClosed) {
			slogger.Error("failed to close codecompass client", slog.Any("error", err))
		}
	}()

	api.NewHandlers(version, client.Indexer, client.Indexer, slogger).
		Mount(server.Router(), client.MCPHandler())

	// The initial index runs in the background; both transports serve
	// while it progresses.
	if err := client.Indexer.Trigger(context.Background()); err != nil {
		return fmt.Errorf("start initial indexing: %w", err)
	}

	go func() {
		if err := server.Serve(); err != nil {
			slogger.Error("utility HTTP server failed", slog.Any("error", err))
		}
	}()

	// The stdio loop returns when the MCP client disconnects or on
	// SIGINT/SIGTERM. The HTTP server drains after it; the deferred
	// Close stops periodic sync and any indexing run.
	mcpErr := client.ServeMCP()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slogger.Error("shutdown error", slog.Any("error", err))
	}

	if mcpErr != nil && !errors.Is(mcpErr, context.Canceled) {
		return fmt.Errorf("mcp server: %w", mcpErr)
	}
	return nil
}

// deferToPeer handles a utility port held by another process. A peer
// codecompass instance means this one reports the peer's status and
// defers to it, optionally relaying HTTP traffic from a free port.
// Anything else holding the port is fatal.
func deferToPeer(host, addr string, relayEnabled bool, logger *slog.Logger) error {
	ctx := context.Background()

	info, err := api.DetectPeer(ctx, addr)
	if err != nil {
		logger.Error("port is in use and its holder did not answer a ping",
			slog.String("addr", addr),
			slog.Any("error", err),
		)
		return fmt.Errorf("address %s is held by an unknown process", addr)
	}
	if !info.IsCodeCompass() {
		logger.Error("port is in use by another service",
			slog.String("addr", addr),
			slog.String("service", info.Service),
		)
		return fmt.Errorf("address %s is held by %q", addr, info.Service)
	}

	logger.Info("another codecompass instance is already serving",
		slog.String("addr", addr),
		slog.String("peer_version", info.Version),
	)
	if status, err := api.FetchPeerStatus(ctx, addr); err != nil {
		logger.Warn("could not fetch peer indexing status", slog.Any("error", err))
	} else {
		logger.Info("peer indexing status", slog.String("status", status))
	}

	if !relayEnabled {
		// The peer serves; this instance exits cleanly.
		return nil
	}

	relay, err := api.NewRelay(net.JoinHostPort(host, "0"), addr, logger)
	if err != nil {
		return fmt.Errorf("create relay: %w", err)
	}
	if err := relay.Listen(); err != nil {
		return fmt.Errorf("bind relay: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := relay.Shutdown(shutdownCtx); err != nil {
			logger.Error("relay shutdown error", slog.Any("error", err))
		}
	}()

	return relay.Serve()
}

// applyServeOverrides applies command line flag overrides to the config.
func applyServeOverrides(cfg *config.AppConfig, repoPath, host string, port int) *config.AppConfig {
	var opts []config.AppConfigOption

	if repoPath != "" {
		opts = append(opts, config.WithRepoPath(repoPath))
	}
	if host != "" {
		opts = append(opts, config.WithHost(host))
	}
	if port != 0 {
		opts = append(opts, config.WithHTTPPort(port))
	}

	return cfg.Apply(opts...)
}
