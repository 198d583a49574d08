// Package repository provides Git repository domain types.
package repository

import "path/filepath"

// Handle identifies the Git working tree the server operates on.
// It is created once at startup and never changes afterwards.
type Handle struct {
	path   string
	gitDir string
}

// NewHandle creates a new Handle for the working tree at path.
func NewHandle(path string) Handle {
	return Handle{
		path:   path,
		gitDir: filepath.Join(path, ".git"),
	}
}

// Path returns the working tree path.
func (h Handle) Path() string { return h.path }

// GitDir returns the resolved .git directory path.
func (h Handle) GitDir() string { return h.gitDir }

// IsEmpty returns true if no path is set.
func (h Handle) IsEmpty() bool { return h.path == "" }
