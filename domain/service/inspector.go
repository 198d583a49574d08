// Package service provides the consumer-side interfaces the application
// layer depends on. Infrastructure packages implement them.
package service

import (
	"context"

	"github.com/codecompass/codecompass/domain/repository"
)

// Inspector extracts data from the target Git repository without
// mutating it.
type Inspector interface {
	// ValidateRepository verifies the working tree hosts a usable Git
	// repository with at least one commit.
	ValidateRepository(ctx context.Context) error

	// ListFiles returns the repository-relative paths tracked at HEAD.
	ListFiles(ctx context.Context) ([]string, error)

	// CommitHistory walks commits newest first, bounded by the options.
	// Changed files carry unified diff text only when WithDiffs is set.
	CommitHistory(ctx context.Context, opts ...repository.HistoryOption) ([]repository.CommitDetail, error)

	// RepositoryDiff renders the textual diff between the two most
	// recent commits. Sentinel text stands in when the repository is
	// missing, has fewer than two commits, or the commits differ only
	// in binary content.
	RepositoryDiff(ctx context.Context) (string, error)
}
