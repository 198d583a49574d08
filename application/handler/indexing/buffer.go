// Package indexing provides the pipeline stages that turn a repository
// into vector store points.
package indexing

import (
	"context"
	"sync"

	"github.com/codecompass/codecompass/domain/point"
	"github.com/codecompass/codecompass/domain/service"
)

// pointBuffer accumulates points and flushes them to the store in
// fixed-size batches. Safe for concurrent Add calls.
type pointBuffer struct {
	mu        sync.Mutex
	store     service.VectorStore
	batchSize int
	pending   []point.Point
	flushed   int
}

func newPointBuffer(store service.VectorStore, batchSize int) *pointBuffer {
	if batchSize <= 0 {
		batchSize = 1
	}
	return &pointBuffer{
		store:     store,
		batchSize: batchSize,
	}
}

// Add buffers points, flushing whenever a full batch accumulates.
func (b *pointBuffer) Add(ctx context.Context, points ...point.Point) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pending = append(b.pending, points...)
	for len(b.pending) >= b.batchSize {
		batch := b.pending[:b.batchSize]
		if err := b.store.BatchUpsert(ctx, batch); err != nil {
			return err
		}
		b.flushed += len(batch)
		b.pending = b.pending[b.batchSize:]
	}
	return nil
}

// Flush writes any remaining points.
func (b *pointBuffer) Flush(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.pending) == 0 {
		return nil
	}
	if err := b.store.BatchUpsert(ctx, b.pending); err != nil {
		return err
	}
	b.flushed += len(b.pending)
	b.pending = nil
	return nil
}

// Flushed returns how many points have been written so far.
func (b *pointBuffer) Flushed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.flushed
}
