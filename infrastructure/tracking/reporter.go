package tracking

import (
	"context"

	"github.com/codecompass/codecompass/domain/indexing"
)

// Reporter defines the interface for progress reporting modules.
// Implementations receive notifications when the indexing status changes.
type Reporter interface {
	// OnChange is called when the indexing status changes.
	OnChange(ctx context.Context, status indexing.Status) error
}
