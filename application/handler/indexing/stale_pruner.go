package indexing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/codecompass/codecompass/domain/point"
	"github.com/codecompass/codecompass/domain/service"
)

// scrollPageSize is how many points each stale-scan page requests.
const scrollPageSize = 256

// StalePruner removes file-chunk points whose file no longer exists in
// the repository. Commit and diff points are historical and never
// pruned.
type StalePruner struct {
	store  service.VectorStore
	logger *slog.Logger
}

// NewStalePruner creates a new StalePruner.
func NewStalePruner(store service.VectorStore, logger *slog.Logger) *StalePruner {
	if logger == nil {
		logger = slog.Default()
	}
	return &StalePruner{
		store:  store,
		logger: logger,
	}
}

// Execute scrolls all file-chunk points and deletes those whose
// filepath is absent from currentFiles. It returns the number of points
// removed.
func (h *StalePruner) Execute(ctx context.Context, currentFiles []string) (int, error) {
	live := make(map[string]struct{}, len(currentFiles))
	for _, f := range currentFiles {
		live[f] = struct{}{}
	}

	filter := point.NewFilter().WithDataType(point.DataTypeFileChunk)

	var stale []string
	offset := ""
	for {
		page, err := h.store.Scroll(ctx, filter, scrollPageSize, offset)
		if err != nil {
			return 0, fmt.Errorf("scroll file chunks: %w", err)
		}

		for _, p := range page.Points() {
			payload, ok := p.Payload().(point.FileChunkPayload)
			if !ok {
				continue
			}
			if _, exists := live[payload.Filepath()]; !exists {
				stale = append(stale, p.ID())
			}
		}

		if !page.HasMore() {
			break
		}
		offset = page.NextOffset()
	}

	if len(stale) == 0 {
		return 0, nil
	}

	if err := h.store.Delete(ctx, stale); err != nil {
		return 0, fmt.Errorf("delete stale points: %w", err)
	}

	h.logger.Info("pruned stale file chunks", "removed", len(stale))
	return len(stale), nil
}
