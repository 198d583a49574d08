package indexing

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/codecompass/codecompass/domain/point"
	"github.com/codecompass/codecompass/domain/repository"
	"github.com/codecompass/codecompass/domain/service"
	"github.com/codecompass/codecompass/infrastructure/chunking"
)

// CommitIndexer embeds commit metadata and per-file diffs as commit-info
// and diff-chunk points.
type CommitIndexer struct {
	repoPath     string
	inspector    service.Inspector
	embedder     service.Embedder
	store        service.VectorStore
	params       chunking.ChunkParams
	historyLimit int
	batchSize    int
	logger       *slog.Logger
}

// NewCommitIndexer creates a new CommitIndexer.
func NewCommitIndexer(
	repoPath string,
	inspector service.Inspector,
	embedder service.Embedder,
	store service.VectorStore,
	params chunking.ChunkParams,
	historyLimit int,
	batchSize int,
	logger *slog.Logger,
) *CommitIndexer {
	if logger == nil {
		logger = slog.Default()
	}
	return &CommitIndexer{
		repoPath:     repoPath,
		inspector:    inspector,
		embedder:     embedder,
		store:        store,
		params:       params,
		historyLimit: historyLimit,
		batchSize:    batchSize,
		logger:       logger,
	}
}

// Execute indexes the newest commits with their diffs. It returns the
// number of points written.
func (h *CommitIndexer) Execute(ctx context.Context, progress Progress) (int, error) {
	commits, err := h.inspector.CommitHistory(ctx,
		repository.WithCount(h.historyLimit),
		repository.WithDiffs(),
	)
	if err != nil {
		return 0, fmt.Errorf("commit history: %w", err)
	}

	buffer := newPointBuffer(h.store, h.batchSize)
	total := len(commits)

	for i, commit := range commits {
		if err := h.indexCommit(ctx, commit, buffer); err != nil {
			return buffer.Flushed(), err
		}
		if progress != nil {
			progress(ctx, commit.OID(), i+1, total)
		}
	}

	if err := buffer.Flush(ctx); err != nil {
		return buffer.Flushed(), fmt.Errorf("flush commit points: %w", err)
	}
	return buffer.Flushed(), nil
}

// indexCommit embeds one commit's metadata rendering and diff chunks in
// a single embedding batch.
func (h *CommitIndexer) indexCommit(ctx context.Context, commit repository.CommitDetail, buffer *pointBuffer) error {
	changed := commit.ChangedFiles()
	summaries := make([]string, len(changed))
	for i, cf := range changed {
		summaries[i] = cf.Summary()
	}

	commitPayload := point.NewCommitInfoPayload(
		commit.OID(),
		commit.Message(),
		commit.Author(),
		commit.Date(),
		summaries,
		commit.Parents(),
		h.repoPath,
	)

	ids := []string{point.CommitID(commit.OID())}
	payloads := []point.Payload{commitPayload}
	texts := []string{commitPayload.EmbeddingText()}

	for _, cf := range changed {
		if cf.Diff() == "" {
			continue
		}

		diffChunks, err := chunking.NewTextChunks(cf.Diff(), h.params)
		if err != nil {
			return fmt.Errorf("chunk diff %s %s: %w", commit.ShortOID(), cf.Path(), err)
		}

		pathKey := chunking.Preprocess(cf.Path())
		totalChunks := diffChunks.Count()
		for _, chunk := range diffChunks.All() {
			if strings.TrimSpace(chunk.Content()) == "" {
				continue
			}
			ids = append(ids, point.DiffChunkID(commit.OID(), pathKey, chunk.Index()))
			payloads = append(payloads, point.NewDiffChunkPayload(
				commit.OID(),
				cf.Path(),
				chunk.Content(),
				chunk.Index(),
				totalChunks,
				cf.ChangeType(),
				h.repoPath,
			))
			texts = append(texts, chunk.Content())
		}
	}

	vectors, err := h.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed commit %s: %w", commit.ShortOID(), err)
	}

	points := make([]point.Point, len(ids))
	for i := range ids {
		points[i] = point.NewPoint(ids[i], vectors[i], payloads[i])
	}
	return buffer.Add(ctx, points...)
}
