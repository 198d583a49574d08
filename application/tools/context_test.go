package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecompass/codecompass/domain/point"
	domainservice "github.com/codecompass/codecompass/domain/service"
)

func dispatchContext(t *testing.T, f *fixture, args map[string]any) (string, error) {
	t.Helper()
	return f.registry.Dispatch(context.Background(), ToolAdditionalContext, args)
}

func TestAdditionalContextRejectsUnknownType(t *testing.T) {
	f := newFixture(t)

	_, err := dispatchContext(t, f, map[string]any{
		"context_type":  "EVERYTHING",
		"query_or_path": "x",
	})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "MORE_SEARCH_RESULTS")
	assert.Contains(t, err.Error(), "ADJACENT_FILE_CHUNKS")
}

func TestMoreSearchResultsElevatesLimit(t *testing.T) {
	f := newFixture(t)
	f.searcher.result = searchResult(0.6, fileChunkHit("main.go", "func main() {}", 0, 1, 0.6))

	out, err := dispatchContext(t, f, map[string]any{
		"context_type":  ContextMoreResults,
		"query_or_path": "entry point",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "# Additional Search Results")
	assert.Contains(t, out, "Query: entry point (limit 20)")
	assert.Contains(t, out, "## main.go (chunk 1/1, score 0.60)")
	assert.Equal(t, []string{"entry point"}, f.searcher.queried())
}

func TestFullFileContentReadsFile(t *testing.T) {
	f := newFixture(t)
	dir := filepath.Join(f.cfg.RepoPath(), "pkg")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "conn.go"), []byte("package pkg\n\nfunc Open() {}\n"), 0o644))

	out, err := dispatchContext(t, f, map[string]any{
		"context_type":  ContextFullFile,
		"query_or_path": "pkg/conn.go",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "# File: pkg/conn.go")
	assert.Contains(t, out, "func Open() {}")
}

func TestFullFileContentHonorsLineRanges(t *testing.T) {
	f := newFixture(t)
	content := "package pkg\n\nfunc Open() {}\n\nfunc Close() {}\n"
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.RepoPath(), "conn.go"), []byte(content), 0o644))

	out, err := dispatchContext(t, f, map[string]any{
		"context_type":  ContextFullFile,
		"query_or_path": "conn.go",
		"lines":         "L1,L3-L5",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "# File: conn.go (lines L1,L3-L5)")
	assert.Contains(t, out, "1\tpackage pkg")
	assert.Contains(t, out, "...")
	assert.Contains(t, out, "3\tfunc Open() {}")
	assert.NotContains(t, out, "2\t")

	_, err = dispatchContext(t, f, map[string]any{
		"context_type":  ContextFullFile,
		"query_or_path": "conn.go",
		"lines":         "L9-L2",
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestFullFileContentRejectsEscapes(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"../secrets.txt", "a/../../b", "/etc/passwd"} {
		_, err := dispatchContext(t, f, map[string]any{
			"context_type":  ContextFullFile,
			"query_or_path": path,
		})
		assert.ErrorIs(t, err, ErrPathOutsideRepo, path)
	}
}

func TestFullFileContentRejectsSymlinkEscape(t *testing.T) {
	f := newFixture(t)
	outside := filepath.Join(t.TempDir(), "outside.txt")
	require.NoError(t, os.WriteFile(outside, []byte("secret"), 0o644))
	link := filepath.Join(f.cfg.RepoPath(), "inside.txt")
	require.NoError(t, os.Symlink(outside, link))

	_, err := dispatchContext(t, f, map[string]any{
		"context_type":  ContextFullFile,
		"query_or_path": "inside.txt",
	})
	assert.ErrorIs(t, err, ErrPathOutsideRepo)
}

func TestFullFileContentMissingFile(t *testing.T) {
	f := newFixture(t)

	_, err := dispatchContext(t, f, map[string]any{
		"context_type":  ContextFullFile,
		"query_or_path": "missing.go",
	})
	assert.ErrorIs(t, err, fs.ErrNotExist)
}

func TestFullFileContentSummarizesLongFiles(t *testing.T) {
	f := newFixture(t, withSmallSnippets())
	f.source.available = true
	f.gen.outputs = []string{"Defines Open and Close over a pool."}
	long := strings.Repeat("func helper() {}\n", 30)
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.RepoPath(), "big.go"), []byte(long), 0o644))

	out, err := dispatchContext(t, f, map[string]any{
		"context_type":  ContextFullFile,
		"query_or_path": "big.go",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "summarized below")
	assert.Contains(t, out, "Defines Open and Close over a pool.")
}

func TestFullFileContentTruncatesWithoutModel(t *testing.T) {
	f := newFixture(t, withSmallSnippets())
	f.source.available = false
	long := strings.Repeat("func helper() {}\n", 30)
	require.NoError(t, os.WriteFile(filepath.Join(f.cfg.RepoPath(), "big.go"), []byte(long), 0o644))

	out, err := dispatchContext(t, f, map[string]any{
		"context_type":  ContextFullFile,
		"query_or_path": "big.go",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "showing the first 40 characters")
	assert.Contains(t, out, "... [truncated]")
}

func TestDirectoryListingSortsAndTags(t *testing.T) {
	f := newFixture(t)
	root := f.cfg.RepoPath()
	require.NoError(t, os.WriteFile(filepath.Join(root, "b.txt"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "cmd"), 0o755))

	out, err := dispatchContext(t, f, map[string]any{
		"context_type":  ContextDirListing,
		"query_or_path": ".",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "# Directory: .")
	assert.Contains(t, out, "- [file] a.txt")
	assert.Contains(t, out, "- [file] b.txt")
	assert.Contains(t, out, "- [dir] cmd")
	assert.Less(t, strings.Index(out, "a.txt"), strings.Index(out, "b.txt"))
}

func TestDirectoryListingCapsEntries(t *testing.T) {
	f := newFixture(t)
	root := f.cfg.RepoPath()
	for i := 0; i < directoryListingCap+5; i++ {
		name := fmt.Sprintf("file_%03d.txt", i)
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}

	out, err := dispatchContext(t, f, map[string]any{
		"context_type":  ContextDirListing,
		"query_or_path": ".",
	})
	require.NoError(t, err)

	assert.Contains(t, out, "file_000.txt")
	assert.Contains(t, out, fmt.Sprintf("... and 5 more entries (listing truncated at %d)", directoryListingCap))
	assert.NotContains(t, out, fmt.Sprintf("file_%03d.txt", directoryListingCap))
}

func storedChunk(path, content string, index, total int) point.Point {
	payload := point.NewFileChunkPayload(path, content, time.Now(), index, total, "/tmp/repo")
	return point.NewPoint(point.FileChunkID(path, index), []float64{0.1}, payload)
}

func TestAdjacentChunksReturnsNeighbors(t *testing.T) {
	f := newFixture(t)
	f.scroller.pages[""] = domainservice.NewScrollPage([]point.Point{
		storedChunk("pkg/db/pool.go", "chunk zero", 0, 3),
		storedChunk("pkg/db/pool.go", "chunk two", 2, 3),
	}, "")

	out, err := dispatchContext(t, f, map[string]any{
		"context_type":  ContextAdjacentChunks,
		"query_or_path": "pkg/db/pool.go",
		"chunk_index":   1,
	})
	require.NoError(t, err)

	assert.Contains(t, out, "# Adjacent Chunks: pkg/db/pool.go (around chunk 1)")
	assert.Contains(t, out, "## Chunk 1/3")
	assert.Contains(t, out, "chunk zero")
	assert.Contains(t, out, "## Chunk 3/3")
	assert.Contains(t, out, "chunk two")
}

func TestAdjacentChunksFirstChunkNote(t *testing.T) {
	f := newFixture(t)
	f.scroller.pages[""] = domainservice.NewScrollPage([]point.Point{
		storedChunk("pkg/db/pool.go", "chunk one", 1, 2),
	}, "")

	out, err := dispatchContext(t, f, map[string]any{
		"context_type":  ContextAdjacentChunks,
		"query_or_path": "pkg/db/pool.go",
		"chunk_index":   0,
	})
	require.NoError(t, err)

	assert.Contains(t, out, "Chunk 0 is the first chunk of the file")
	assert.Contains(t, out, "## Chunk 2/2")
}

func TestAdjacentChunksReportsMissingNeighbor(t *testing.T) {
	f := newFixture(t)
	f.scroller.pages[""] = domainservice.NewScrollPage([]point.Point{
		storedChunk("pkg/db/pool.go", "chunk zero", 0, 2),
	}, "")

	out, err := dispatchContext(t, f, map[string]any{
		"context_type":  ContextAdjacentChunks,
		"query_or_path": "pkg/db/pool.go",
		"chunk_index":   1,
	})
	require.NoError(t, err)

	assert.Contains(t, out, "## Chunk 1/2")
	assert.Contains(t, out, "No chunk 2: the file has 2 chunks.")
}

func TestAdjacentChunksNotIndexed(t *testing.T) {
	f := newFixture(t)

	out, err := dispatchContext(t, f, map[string]any{
		"context_type":  ContextAdjacentChunks,
		"query_or_path": "pkg/unknown.go",
		"chunk_index":   4,
	})
	require.NoError(t, err)

	assert.Contains(t, out, "No indexed chunks found next to chunk 4.")
	assert.Contains(t, out, "search_code")
}

func TestAdjacentChunksRequiresChunkIndex(t *testing.T) {
	f := newFixture(t)

	_, err := dispatchContext(t, f, map[string]any{
		"context_type":  ContextAdjacentChunks,
		"query_or_path": "pkg/db/pool.go",
	})
	require.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "chunk_index")
}
