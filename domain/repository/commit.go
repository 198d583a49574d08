package repository

import (
	"fmt"
	"strings"
	"time"
)

// Author represents a Git commit author or committer.
type Author struct {
	name  string
	email string
}

// NewAuthor creates a new Author.
func NewAuthor(name, email string) Author {
	return Author{
		name:  name,
		email: email,
	}
}

// Name returns the author's name.
func (a Author) Name() string { return a.name }

// Email returns the author's email.
func (a Author) Email() string { return a.email }

// IsEmpty returns true if no name is set.
func (a Author) IsEmpty() bool { return a.name == "" }

// String returns a formatted representation (Name <email>).
func (a Author) String() string {
	if a.email == "" {
		return a.name
	}
	return fmt.Sprintf("%s <%s>", a.name, a.email)
}

// CommitDetail describes one commit and the files it touched.
type CommitDetail struct {
	oid          string
	message      string
	author       Author
	committer    Author
	date         time.Time
	parents      []string
	changedFiles []ChangedFile
}

// NewCommitDetail creates a new CommitDetail.
func NewCommitDetail(
	oid string,
	message string,
	author Author,
	committer Author,
	date time.Time,
	parents []string,
	changedFiles []ChangedFile,
) CommitDetail {
	p := make([]string, len(parents))
	copy(p, parents)
	cf := make([]ChangedFile, len(changedFiles))
	copy(cf, changedFiles)
	return CommitDetail{
		oid:          oid,
		message:      message,
		author:       author,
		committer:    committer,
		date:         date,
		parents:      p,
		changedFiles: cf,
	}
}

// OID returns the commit object ID.
func (c CommitDetail) OID() string { return c.oid }

// Message returns the full commit message.
func (c CommitDetail) Message() string { return c.message }

// Author returns the commit author.
func (c CommitDetail) Author() Author { return c.author }

// Committer returns the committer.
func (c CommitDetail) Committer() Author { return c.committer }

// Date returns the author timestamp.
func (c CommitDetail) Date() time.Time { return c.date }

// Parents returns the parent commit OIDs.
func (c CommitDetail) Parents() []string {
	result := make([]string, len(c.parents))
	copy(result, c.parents)
	return result
}

// ChangedFiles returns the files this commit changed relative to its
// first parent (all files as additions on an initial commit).
func (c CommitDetail) ChangedFiles() []ChangedFile {
	result := make([]ChangedFile, len(c.changedFiles))
	copy(result, c.changedFiles)
	return result
}

// IsInitial returns true if the commit has no parents.
func (c CommitDetail) IsInitial() bool { return len(c.parents) == 0 }

// ShortOID returns the first 7 characters of the OID.
func (c CommitDetail) ShortOID() string {
	if len(c.oid) <= 7 {
		return c.oid
	}
	return c.oid[:7]
}

// ShortMessage returns the first line of the commit message.
func (c CommitDetail) ShortMessage() string {
	line, _, _ := strings.Cut(c.message, "\n")
	return line
}
