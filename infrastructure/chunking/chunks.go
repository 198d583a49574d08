// Package chunking provides text normalization and fixed-size character
// chunking with overlap for embedding and deterministic point IDs.
package chunking

import (
	"fmt"
)

// ChunkParams configures the chunking window.
type ChunkParams struct {
	Size    int
	Overlap int
}

// Chunk is one window of a larger text.
type Chunk struct {
	content string
	index   int
	offset  int
}

// Content returns the chunk text.
func (c Chunk) Content() string { return c.content }

// Index returns the zero-based position of this chunk in the sequence.
func (c Chunk) Index() int { return c.index }

// Offset returns the rune offset of the chunk within the source text.
func (c Chunk) Offset() int { return c.offset }

// TextChunks holds the ordered chunks of one text.
type TextChunks struct {
	chunks []Chunk
}

// NewTextChunks splits content into windows of at most Size runes where
// consecutive windows share Overlap runes. Size, Overlap, and window
// positions are measured in runes (Unicode code points). Every rune of
// the input appears in at least one chunk; a trailing window that adds
// no new runes is not emitted. Empty content yields no chunks.
func NewTextChunks(content string, params ChunkParams) (TextChunks, error) {
	if params.Size <= 0 {
		return TextChunks{}, fmt.Errorf("chunk size must be positive, got %d", params.Size)
	}
	if params.Overlap < 0 || params.Overlap >= params.Size {
		return TextChunks{}, fmt.Errorf("overlap (%d) must be non-negative and less than size (%d)", params.Overlap, params.Size)
	}
	if content == "" {
		return TextChunks{}, nil
	}

	runes := []rune(content)
	step := params.Size - params.Overlap
	var chunks []Chunk
	for i := 0; i < len(runes); i += step {
		end := min(i+params.Size, len(runes))
		// A window this short is already covered by the previous one.
		if i > 0 && end-i <= params.Overlap {
			break
		}
		chunks = append(chunks, Chunk{content: string(runes[i:end]), index: len(chunks), offset: i})
	}
	return TextChunks{chunks: chunks}, nil
}

// All returns the chunks in order.
func (t TextChunks) All() []Chunk { return t.chunks }

// Count returns the number of chunks.
func (t TextChunks) Count() int { return len(t.chunks) }
