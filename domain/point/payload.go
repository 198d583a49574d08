// Package point defines vector point identities and payload variants.
package point

import (
	"fmt"
	"strings"
	"time"

	"github.com/codecompass/codecompass/domain/repository"
)

// DataType tags the payload variant stored with a vector point.
type DataType string

// DataType values.
const (
	DataTypeFileChunk  DataType = "file_chunk"
	DataTypeCommitInfo DataType = "commit_info"
	DataTypeDiffChunk  DataType = "diff_chunk"
)

// Payload is the tagged variant stored alongside a vector.
type Payload interface {
	// DataType identifies the payload variant.
	DataType() DataType
	// EmbeddingText returns the canonical text the point is embedded
	// under. Identical payload identifiers always yield identical text.
	EmbeddingText() string
}

// FileChunkPayload describes one chunk of a working-tree file.
type FileChunkPayload struct {
	filepath       string
	chunk          string
	lastModified   time.Time
	chunkIndex     int
	totalChunks    int
	repositoryPath string
}

// NewFileChunkPayload creates a new FileChunkPayload.
func NewFileChunkPayload(
	filepath string,
	chunk string,
	lastModified time.Time,
	chunkIndex int,
	totalChunks int,
	repositoryPath string,
) FileChunkPayload {
	return FileChunkPayload{
		filepath:       filepath,
		chunk:          chunk,
		lastModified:   lastModified,
		chunkIndex:     chunkIndex,
		totalChunks:    totalChunks,
		repositoryPath: repositoryPath,
	}
}

// DataType identifies the payload variant.
func (p FileChunkPayload) DataType() DataType { return DataTypeFileChunk }

// EmbeddingText returns the chunk content.
func (p FileChunkPayload) EmbeddingText() string { return p.chunk }

// Filepath returns the repository-relative file path.
func (p FileChunkPayload) Filepath() string { return p.filepath }

// Chunk returns the file content chunk.
func (p FileChunkPayload) Chunk() string { return p.chunk }

// LastModified returns the file's modification time when indexed.
func (p FileChunkPayload) LastModified() time.Time { return p.lastModified }

// ChunkIndex returns the zero-based chunk position within the file.
func (p FileChunkPayload) ChunkIndex() int { return p.chunkIndex }

// TotalChunks returns how many chunks the file produced.
func (p FileChunkPayload) TotalChunks() int { return p.totalChunks }

// RepositoryPath returns the indexed repository path.
func (p FileChunkPayload) RepositoryPath() string { return p.repositoryPath }

// CommitInfoPayload describes one commit's metadata.
type CommitInfoPayload struct {
	oid            string
	message        string
	author         repository.Author
	date           time.Time
	changedFiles   []string
	parents        []string
	repositoryPath string
}

// NewCommitInfoPayload creates a new CommitInfoPayload. changedFiles
// holds one "type: path" summary line per changed file.
func NewCommitInfoPayload(
	oid string,
	message string,
	author repository.Author,
	date time.Time,
	changedFiles []string,
	parents []string,
	repositoryPath string,
) CommitInfoPayload {
	cf := make([]string, len(changedFiles))
	copy(cf, changedFiles)
	p := make([]string, len(parents))
	copy(p, parents)
	return CommitInfoPayload{
		oid:            oid,
		message:        message,
		author:         author,
		date:           date,
		changedFiles:   cf,
		parents:        p,
		repositoryPath: repositoryPath,
	}
}

// DataType identifies the payload variant.
func (p CommitInfoPayload) DataType() DataType { return DataTypeCommitInfo }

// EmbeddingText returns a canonical rendering of the commit metadata.
func (p CommitInfoPayload) EmbeddingText() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Commit: %s\n", p.oid)
	fmt.Fprintf(&b, "Author: %s\n", p.author.String())
	fmt.Fprintf(&b, "Date: %s\n", p.date.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "Message: %s\n", p.message)
	b.WriteString("Changed files:\n")
	for _, f := range p.changedFiles {
		b.WriteString(f)
		b.WriteByte('\n')
	}
	return b.String()
}

// OID returns the commit object ID.
func (p CommitInfoPayload) OID() string { return p.oid }

// Message returns the commit message.
func (p CommitInfoPayload) Message() string { return p.message }

// Author returns the commit author.
func (p CommitInfoPayload) Author() repository.Author { return p.author }

// Date returns the author timestamp.
func (p CommitInfoPayload) Date() time.Time { return p.date }

// ChangedFiles returns the changed file summary lines.
func (p CommitInfoPayload) ChangedFiles() []string {
	result := make([]string, len(p.changedFiles))
	copy(result, p.changedFiles)
	return result
}

// Parents returns the parent commit OIDs.
func (p CommitInfoPayload) Parents() []string {
	result := make([]string, len(p.parents))
	copy(result, p.parents)
	return result
}

// RepositoryPath returns the indexed repository path.
func (p CommitInfoPayload) RepositoryPath() string { return p.repositoryPath }

// DiffChunkPayload describes one chunk of a per-file commit diff.
type DiffChunkPayload struct {
	oid            string
	filepath       string
	chunk          string
	chunkIndex     int
	totalChunks    int
	changeType     repository.ChangeType
	repositoryPath string
}

// NewDiffChunkPayload creates a new DiffChunkPayload.
func NewDiffChunkPayload(
	oid string,
	filepath string,
	chunk string,
	chunkIndex int,
	totalChunks int,
	changeType repository.ChangeType,
	repositoryPath string,
) DiffChunkPayload {
	return DiffChunkPayload{
		oid:            oid,
		filepath:       filepath,
		chunk:          chunk,
		chunkIndex:     chunkIndex,
		totalChunks:    totalChunks,
		changeType:     changeType,
		repositoryPath: repositoryPath,
	}
}

// DataType identifies the payload variant.
func (p DiffChunkPayload) DataType() DataType { return DataTypeDiffChunk }

// EmbeddingText returns the diff chunk content.
func (p DiffChunkPayload) EmbeddingText() string { return p.chunk }

// OID returns the commit object ID the diff belongs to.
func (p DiffChunkPayload) OID() string { return p.oid }

// Filepath returns the changed file path.
func (p DiffChunkPayload) Filepath() string { return p.filepath }

// Chunk returns the diff content chunk.
func (p DiffChunkPayload) Chunk() string { return p.chunk }

// ChunkIndex returns the zero-based chunk position within the diff.
func (p DiffChunkPayload) ChunkIndex() int { return p.chunkIndex }

// TotalChunks returns how many chunks the diff produced.
func (p DiffChunkPayload) TotalChunks() int { return p.totalChunks }

// ChangeType returns how the file changed.
func (p DiffChunkPayload) ChangeType() repository.ChangeType { return p.changeType }

// RepositoryPath returns the indexed repository path.
func (p DiffChunkPayload) RepositoryPath() string { return p.repositoryPath }
