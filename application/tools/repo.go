package tools

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// changelogFile is the file get_changelog serves from the repository root.
const changelogFile = "CHANGELOG.md"

// noChangelogText is returned when the repository carries no changelog.
const noChangelogText = "No CHANGELOG.md found in the repository root."

// getChangelog returns the repository changelog verbatim.
func (r *Registry) getChangelog(_ context.Context, _ Args) (string, error) {
	content, err := os.ReadFile(filepath.Join(r.repoPath, changelogFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return noChangelogText + "\n", nil
		}
		return "", fmt.Errorf("read changelog: %w", err)
	}
	return string(content), nil
}

// indexingStatus renders the current indexing run snapshot.
func (r *Registry) indexingStatus(_ context.Context, _ Args) (string, error) {
	status := r.indexer.Status()

	var b strings.Builder
	b.WriteString("# Indexing Status\n\n")
	fmt.Fprintf(&b, "State: %s\n", status.State())
	fmt.Fprintf(&b, "Progress: %d%%\n", status.Progress())
	fmt.Fprintf(&b, "Message: %s\n", status.Message())
	if status.TotalFiles() > 0 {
		fmt.Fprintf(&b, "Files: %d/%d\n", status.FilesIndexed(), status.TotalFiles())
	}
	if status.TotalCommits() > 0 {
		fmt.Fprintf(&b, "Commits: %d/%d\n", status.CommitsIndexed(), status.TotalCommits())
	}
	if status.State().IsActive() {
		if file := status.CurrentFile(); file != "" {
			fmt.Fprintf(&b, "Current file: %s\n", file)
		}
		if commit := status.CurrentCommit(); commit != "" {
			fmt.Fprintf(&b, "Current commit: %s\n", commit)
		}
	}
	if details := status.ErrorDetails(); details != "" {
		fmt.Fprintf(&b, "Error: %s\n", details)
	}
	fmt.Fprintf(&b, "Last updated: %s\n", status.LastUpdatedAt().UTC().Format("2006-01-02 15:04:05 UTC"))
	return b.String(), nil
}

// triggerUpdate starts a background re-index of the repository.
func (r *Registry) triggerUpdate(ctx context.Context, _ Args) (string, error) {
	if err := r.indexer.Trigger(ctx); err != nil {
		return "", err
	}
	return "Re-indexing started in the background. Use get_indexing_status to track progress.\n", nil
}
