package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codecompass/codecompass/application/handler/indexing"
	domainindexing "github.com/codecompass/codecompass/domain/indexing"
	"github.com/codecompass/codecompass/domain/repository"
	"github.com/codecompass/codecompass/domain/service"
	"github.com/codecompass/codecompass/infrastructure/tracking"
)

// PruneStage removes vector points for files no longer present.
type PruneStage interface {
	Execute(ctx context.Context, currentFiles []string) (int, error)
}

// FileStage indexes the current content of repository files.
type FileStage interface {
	Execute(ctx context.Context, files []string, progress indexing.Progress) (int, error)
}

// CommitStage indexes commit metadata and diffs.
type CommitStage interface {
	Execute(ctx context.Context, progress indexing.Progress) (int, error)
}

// Indexer runs the repository indexing pipeline: validate, list files,
// prune stale entries, index file content, index commits and diffs. At
// most one run is active at a time; the monitor rejects concurrent
// triggers.
type Indexer struct {
	inspector service.Inspector
	monitor   *tracking.Monitor
	pruner    PruneStage
	files     FileStage
	commits   CommitStage
	closed    *atomic.Bool
	logger    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewIndexer creates a new Indexer.
func NewIndexer(
	inspector service.Inspector,
	monitor *tracking.Monitor,
	pruner PruneStage,
	files FileStage,
	commits CommitStage,
	closed *atomic.Bool,
	logger *slog.Logger,
) *Indexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{
		inspector: inspector,
		monitor:   monitor,
		pruner:    pruner,
		files:     files,
		commits:   commits,
		closed:    closed,
		logger:    logger,
	}
}

// Status returns the current indexing status snapshot.
func (s *Indexer) Status() domainindexing.Status {
	return s.monitor.Status()
}

// Running reports whether a run is active.
func (s *Indexer) Running() bool {
	return s.monitor.Running()
}

// Trigger starts an indexing run in the background. It returns
// indexing.ErrIndexingInProgress while another run is active. The run
// outlives the caller's context; use Stop to cancel it.
func (s *Indexer) Trigger(ctx context.Context) error {
	if s.closed != nil && s.closed.Load() {
		return ErrClientClosed
	}
	if err := s.monitor.TryBegin(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		if err := s.runPipeline(runCtx); err != nil {
			s.logger.Error("indexing run failed", "error", err)
		}
	}()
	return nil
}

// Run executes an indexing run synchronously. It returns
// indexing.ErrIndexingInProgress while another run is active.
func (s *Indexer) Run(ctx context.Context) error {
	if s.closed != nil && s.closed.Load() {
		return ErrClientClosed
	}
	if err := s.monitor.TryBegin(ctx); err != nil {
		return err
	}
	return s.runPipeline(ctx)
}

// Stop cancels any active background run and waits for it to finish.
func (s *Indexer) Stop() {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

func (s *Indexer) runPipeline(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("indexing run panicked: %v", r)
			s.monitor.Fail(ctx, "indexing run panicked", fmt.Sprint(r))
		}
	}()

	start := time.Now()

	s.monitor.Transition(ctx, domainindexing.StateValidatingRepo, "Validating repository")
	if err := s.inspector.ValidateRepository(ctx); err != nil {
		s.monitor.Fail(ctx, "repository validation failed", err.Error())
		return fmt.Errorf("validate repository: %w", err)
	}

	s.monitor.Transition(ctx, domainindexing.StateListingFiles, "Listing repository files")
	listed, err := s.inspector.ListFiles(ctx)
	if err != nil {
		s.monitor.Fail(ctx, "listing files failed", err.Error())
		return fmt.Errorf("list files: %w", err)
	}
	files := repository.FilterIndexable(listed)

	s.monitor.Transition(ctx, domainindexing.StateCleaningStale, "Removing stale entries")
	removed, err := s.pruner.Execute(ctx, files)
	if err != nil {
		s.monitor.Fail(ctx, "stale entry cleanup failed", err.Error())
		return fmt.Errorf("prune stale entries: %w", err)
	}

	s.monitor.Transition(ctx, domainindexing.StateIndexingFiles,
		fmt.Sprintf("Indexing %d files", len(files)))
	chunks, err := s.files.Execute(ctx, files, s.monitor.FileProgress)
	if err != nil {
		s.monitor.Fail(ctx, "file indexing failed", err.Error())
		return fmt.Errorf("index files: %w", err)
	}

	s.monitor.Transition(ctx, domainindexing.StateIndexingCommits, "Indexing commit history")
	commitPoints, err := s.commits.Execute(ctx, s.monitor.CommitProgress)
	if err != nil {
		s.monitor.Fail(ctx, "commit indexing failed", err.Error())
		return fmt.Errorf("index commits: %w", err)
	}

	s.monitor.Complete(ctx, fmt.Sprintf(
		"Indexed %d files (%d chunks, %d commit points, %d stale removed)",
		len(files), chunks, commitPoints, removed))

	s.logger.Info("indexing run finished",
		"files", len(files),
		"chunks", chunks,
		"commit_points", commitPoints,
		"stale_removed", removed,
		"duration", time.Since(start))
	return nil
}
