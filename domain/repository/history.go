package repository

import "time"

// HistoryOptions bounds a commit history walk.
type HistoryOptions struct {
	since time.Time
	count int
	ref   string
	diffs bool
}

// HistoryOption is a functional option for HistoryOptions.
type HistoryOption func(*HistoryOptions)

// WithSince limits the walk to commits at or after t.
func WithSince(t time.Time) HistoryOption {
	return func(o *HistoryOptions) { o.since = t }
}

// WithCount caps the number of commits returned (0 means unlimited).
func WithCount(n int) HistoryOption {
	return func(o *HistoryOptions) { o.count = n }
}

// WithRef starts the walk at the named ref instead of HEAD.
func WithRef(ref string) HistoryOption {
	return func(o *HistoryOptions) { o.ref = ref }
}

// WithDiffs requests per-file unified diff text on each changed file.
// Without it, changed files carry paths and change types only.
func WithDiffs() HistoryOption {
	return func(o *HistoryOptions) { o.diffs = true }
}

// NewHistoryOptions creates HistoryOptions from functional options.
func NewHistoryOptions(opts ...HistoryOption) HistoryOptions {
	var o HistoryOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Since returns the lower time bound (zero means unbounded).
func (o HistoryOptions) Since() time.Time { return o.since }

// Count returns the commit cap (0 means unlimited).
func (o HistoryOptions) Count() int { return o.count }

// Ref returns the starting ref ("" means HEAD).
func (o HistoryOptions) Ref() string { return o.ref }

// Diffs returns whether per-file diff text was requested.
func (o HistoryOptions) Diffs() bool { return o.diffs }
