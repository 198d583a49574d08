// Package indexing provides indexing run state types.
package indexing

import (
	"errors"
	"time"
)

// ErrIndexingInProgress rejects a trigger while another run is active.
var ErrIndexingInProgress = errors.New("indexing already in progress")

// State identifies a phase of one indexing run.
type State string

// State values, in run order.
const (
	StateIdle            State = "idle"
	StateInitializing    State = "initializing"
	StateValidatingRepo  State = "validating_repo"
	StateListingFiles    State = "listing_files"
	StateCleaningStale   State = "cleaning_stale_entries"
	StateIndexingFiles   State = "indexing_file_content"
	StateIndexingCommits State = "indexing_commits_diffs"
	StateCompleted       State = "completed"
	StateFailed          State = "failed"
)

// stateRank orders states so transitions within a run only move forward.
var stateRank = map[State]int{
	StateIdle:            0,
	StateInitializing:    1,
	StateValidatingRepo:  2,
	StateListingFiles:    3,
	StateCleaningStale:   4,
	StateIndexingFiles:   5,
	StateIndexingCommits: 6,
	StateCompleted:       7,
	StateFailed:          7,
}

// IsTerminal returns true once a run has finished.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// IsActive returns true while a run is underway. A new run may only
// start when the current state is not active.
func (s State) IsActive() bool {
	return s != StateIdle && !s.IsTerminal()
}

// CanTransition reports whether moving from s to next keeps the run
// monotone. Terminal states accept a fresh run's initializing phase.
func (s State) CanTransition(next State) bool {
	if next == StateFailed {
		return true
	}
	if s.IsTerminal() || s == StateIdle {
		return next == StateInitializing
	}
	return stateRank[next] > stateRank[s]
}

// Status is a snapshot of the indexing run. Snapshots are immutable;
// the pipeline derives each update from the previous snapshot.
type Status struct {
	state          State
	progress       int
	message        string
	lastUpdatedAt  time.Time
	currentFile    string
	currentCommit  string
	totalFiles     int
	filesIndexed   int
	totalCommits   int
	commitsIndexed int
	errorDetails   string
}

// NewStatus creates an idle Status.
func NewStatus() Status {
	return Status{
		state:         StateIdle,
		message:       "Indexing not started",
		lastUpdatedAt: time.Now().UTC(),
	}
}

// State returns the run state.
func (s Status) State() State { return s.state }

// Progress returns the overall progress percentage (0-100).
func (s Status) Progress() int { return s.progress }

// Message returns the human-readable status message.
func (s Status) Message() string { return s.message }

// LastUpdatedAt returns when the snapshot was taken.
func (s Status) LastUpdatedAt() time.Time { return s.lastUpdatedAt }

// CurrentFile returns the file being indexed ("" outside the file phase).
func (s Status) CurrentFile() string { return s.currentFile }

// CurrentCommit returns the commit being indexed ("" outside the commit
// phase).
func (s Status) CurrentCommit() string { return s.currentCommit }

// TotalFiles returns how many files the run will index.
func (s Status) TotalFiles() int { return s.totalFiles }

// FilesIndexed returns how many files have been indexed so far.
func (s Status) FilesIndexed() int { return s.filesIndexed }

// TotalCommits returns how many commits the run will index.
func (s Status) TotalCommits() int { return s.totalCommits }

// CommitsIndexed returns how many commits have been indexed so far.
func (s Status) CommitsIndexed() int { return s.commitsIndexed }

// ErrorDetails returns failure details ("" unless the run failed).
func (s Status) ErrorDetails() string { return s.errorDetails }

// WithState returns a copy in the given state with a new message.
func (s Status) WithState(state State, message string) Status {
	s.state = state
	s.message = message
	s.lastUpdatedAt = time.Now().UTC()
	return s
}

// WithProgress returns a copy with the given overall progress.
func (s Status) WithProgress(progress int) Status {
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}
	s.progress = progress
	s.lastUpdatedAt = time.Now().UTC()
	return s
}

// WithCurrentFile returns a copy with the file being indexed.
func (s Status) WithCurrentFile(path string) Status {
	s.currentFile = path
	s.lastUpdatedAt = time.Now().UTC()
	return s
}

// WithCurrentCommit returns a copy with the commit being indexed.
func (s Status) WithCurrentCommit(oid string) Status {
	s.currentCommit = oid
	s.lastUpdatedAt = time.Now().UTC()
	return s
}

// WithFileCounts returns a copy with file phase counters.
func (s Status) WithFileCounts(indexed, total int) Status {
	s.filesIndexed = indexed
	s.totalFiles = total
	s.lastUpdatedAt = time.Now().UTC()
	return s
}

// WithCommitCounts returns a copy with commit phase counters.
func (s Status) WithCommitCounts(indexed, total int) Status {
	s.commitsIndexed = indexed
	s.totalCommits = total
	s.lastUpdatedAt = time.Now().UTC()
	return s
}

// WithError returns a failed copy carrying the error details.
func (s Status) WithError(message, details string) Status {
	s.state = StateFailed
	s.message = message
	s.errorDetails = details
	s.lastUpdatedAt = time.Now().UTC()
	return s
}
