// Package git inspects the target repository through one of two
// interchangeable backends: go-git (pure Go, default) or gitea's git
// module (shells out to the native binary, faster on large histories).
package git

import (
	"bytes"
	"errors"
	"strings"
)

// Verbatim texts RepositoryDiff returns when no diff can be produced.
// Callers pass them through unchanged.
const (
	NoRepositoryText      = "No Git repository found"
	NoPreviousCommitsText = "No previous commits to compare"
	NoTextualChangesText  = "No textual changes found"
)

// DiffTruncationMarker is appended when a repository diff exceeds the
// configured maximum length.
const DiffTruncationMarker = "... [diff truncated]"

// binaryDiffBody replaces the hunks of a file whose old or new content
// is binary.
const binaryDiffBody = "Binary files differ"

// Inspection errors.
var (
	// ErrNoRepository indicates the configured path does not host a
	// Git repository.
	ErrNoRepository = errors.New("no git repository found")

	// ErrNoCommits indicates the repository exists but has no commits
	// to index.
	ErrNoCommits = errors.New("repository has no commits")

	// ErrBranchNotFound indicates the requested ref was not found.
	ErrBranchNotFound = errors.New("branch not found")
)

// binaryProbeSize bounds how many leading bytes are inspected when
// classifying content as binary.
const binaryProbeSize = 8192

// isBinary reports whether content looks like binary data, using the
// same heuristic git uses: a NUL byte in the leading bytes.
func isBinary(content []byte) bool {
	probe := content
	if len(probe) > binaryProbeSize {
		probe = probe[:binaryProbeSize]
	}
	return bytes.IndexByte(probe, 0) != -1
}

// truncateDiff clips diff to maxLength runes and appends the truncation
// marker. Non-positive maxLength disables clipping.
func truncateDiff(diff string, maxLength int) string {
	if maxLength <= 0 {
		return diff
	}
	runes := []rune(diff)
	if len(runes) <= maxLength {
		return diff
	}
	return strings.TrimRight(string(runes[:maxLength]), "\n") + "\n" + DiffTruncationMarker
}
