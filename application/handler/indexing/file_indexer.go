package indexing

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/codecompass/codecompass/domain/point"
	"github.com/codecompass/codecompass/domain/service"
	"github.com/codecompass/codecompass/infrastructure/chunking"
	"golang.org/x/sync/errgroup"
)

// binaryProbeSize is the number of bytes checked for null bytes to
// detect binary files.
const binaryProbeSize = 8192

// Progress is called after each unit of work with the item just
// finished and the running counts.
type Progress func(ctx context.Context, item string, done, total int)

// FileIndexer embeds the current content of repository files as
// file-chunk points.
type FileIndexer struct {
	repoPath    string
	embedder    service.Embedder
	store       service.VectorStore
	params      chunking.ChunkParams
	batchSize   int
	parallelism int
	logger      *slog.Logger
}

// NewFileIndexer creates a new FileIndexer.
func NewFileIndexer(
	repoPath string,
	embedder service.Embedder,
	store service.VectorStore,
	params chunking.ChunkParams,
	batchSize int,
	parallelism int,
	logger *slog.Logger,
) *FileIndexer {
	if parallelism <= 0 {
		parallelism = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FileIndexer{
		repoPath:    repoPath,
		embedder:    embedder,
		store:       store,
		params:      params,
		batchSize:   batchSize,
		parallelism: parallelism,
		logger:      logger,
	}
}

// Execute indexes the given repository-relative files. Unreadable and
// binary files are skipped with a warning; embedding and store failures
// abort the run. It returns the number of chunk points written.
func (h *FileIndexer) Execute(ctx context.Context, files []string, progress Progress) (int, error) {
	buffer := newPointBuffer(h.store, h.batchSize)
	total := len(files)

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.parallelism)

	for _, rel := range files {
		g.Go(func() error {
			if err := h.indexFile(gctx, rel, buffer); err != nil {
				return err
			}
			if progress != nil {
				progress(gctx, rel, int(done.Add(1)), total)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return buffer.Flushed(), err
	}
	if err := buffer.Flush(ctx); err != nil {
		return buffer.Flushed(), fmt.Errorf("flush file chunks: %w", err)
	}
	return buffer.Flushed(), nil
}

// indexFile reads, chunks, and embeds one file into the buffer.
func (h *FileIndexer) indexFile(ctx context.Context, rel string, buffer *pointBuffer) error {
	abs := filepath.Join(h.repoPath, rel)

	info, err := os.Stat(abs)
	if err != nil {
		h.logger.Warn("skipping unreadable file", "path", rel, "error", err)
		return nil
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		h.logger.Warn("skipping unreadable file", "path", rel, "error", err)
		return nil
	}
	if isBinary(content) {
		h.logger.Debug("skipping binary file", "path", rel)
		return nil
	}

	text := chunking.Preprocess(string(content))
	if text == "" {
		return nil
	}

	textChunks, err := chunking.NewTextChunks(text, h.params)
	if err != nil {
		return fmt.Errorf("chunk %s: %w", rel, err)
	}

	var chunks []chunking.Chunk
	var texts []string
	for _, chunk := range textChunks.All() {
		if strings.TrimSpace(chunk.Content()) == "" {
			continue
		}
		chunks = append(chunks, chunk)
		texts = append(texts, chunk.Content())
	}
	if len(chunks) == 0 {
		return nil
	}

	vectors, err := h.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed %s: %w", rel, err)
	}

	pathKey := chunking.Preprocess(rel)
	totalChunks := textChunks.Count()
	points := make([]point.Point, len(chunks))
	for i, chunk := range chunks {
		payload := point.NewFileChunkPayload(
			rel,
			chunk.Content(),
			info.ModTime(),
			chunk.Index(),
			totalChunks,
			h.repoPath,
		)
		points[i] = point.NewPoint(point.FileChunkID(pathKey, chunk.Index()), vectors[i], payload)
	}

	return buffer.Add(ctx, points...)
}

// isBinary returns true if the content contains null bytes in the first
// 8KB.
func isBinary(content []byte) bool {
	probe := content
	if len(probe) > binaryProbeSize {
		probe = probe[:binaryProbeSize]
	}
	return bytes.ContainsRune(probe, 0)
}
