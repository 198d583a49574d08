package service

import (
	"context"

	"github.com/codecompass/codecompass/domain/point"
)

// ScrollPage is one page of a collection scroll.
type ScrollPage struct {
	points     []point.Point
	nextOffset string
}

// NewScrollPage creates a new ScrollPage. nextOffset is "" on the last
// page.
func NewScrollPage(points []point.Point, nextOffset string) ScrollPage {
	p := make([]point.Point, len(points))
	copy(p, points)
	return ScrollPage{
		points:     p,
		nextOffset: nextOffset,
	}
}

// Points returns the page's points. Vectors may be empty; scrolling
// retrieves identity and payload only.
func (p ScrollPage) Points() []point.Point {
	result := make([]point.Point, len(p.points))
	copy(result, p.points)
	return result
}

// NextOffset returns the cursor for the next page ("" when exhausted).
func (p ScrollPage) NextOffset() string { return p.nextOffset }

// HasMore returns true if another page follows.
func (p ScrollPage) HasMore() bool { return p.nextOffset != "" }

// VectorStore persists and searches embedding points.
type VectorStore interface {
	// Initialize ensures the collection exists with the configured
	// dimension, creating it when absent. An existing collection with a
	// different dimension or distance is a fatal configuration error.
	Initialize(ctx context.Context) error

	// BatchUpsert writes points in batches. Upserting an existing ID
	// replaces that point.
	BatchUpsert(ctx context.Context, points []point.Point) error

	// Search returns up to limit points nearest to vector, best first,
	// narrowed by filter.
	Search(ctx context.Context, vector []float64, limit int, filter point.Filter) ([]point.ScoredPoint, error)

	// Scroll pages through points matching filter. Pass "" as offset for
	// the first page.
	Scroll(ctx context.Context, filter point.Filter, limit int, offset string) (ScrollPage, error)

	// Delete removes points by their logical IDs.
	Delete(ctx context.Context, ids []string) error

	// Count returns how many points match filter (all points for the
	// zero filter).
	Count(ctx context.Context, filter point.Filter) (int, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error
}
