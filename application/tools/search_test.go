package tools

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearchCodeRendersAllResultKinds(t *testing.T) {
	f := newFixture(t)
	f.searcher.result = searchResult(0.82,
		fileChunkHit("internal/auth/middleware.go", "func AuthMiddleware() {}", 0, 3, 0.91),
		commitHit("0123456789abcdef", "Add token validation", 0.80, "modify: internal/auth/middleware.go"),
		diffChunkHit("0123456789abcdef", "internal/auth/middleware.go", "+\tvalidateToken(r)", 0, 1, 0.75),
	)

	out, err := f.registry.Dispatch(context.Background(), ToolSearchCode, map[string]any{"query": "auth middleware"})
	require.NoError(t, err)

	assert.Contains(t, out, "# Code Search Results")
	assert.Contains(t, out, "Query: auth middleware")
	assert.Contains(t, out, "Refined query: refined query")
	assert.Contains(t, out, "Average relevance: 0.82")
	assert.Contains(t, out, "## internal/auth/middleware.go (chunk 1/3, score 0.91)")
	assert.Contains(t, out, "func AuthMiddleware() {}")
	assert.Contains(t, out, "## Commit 01234567 (score 0.80)")
	assert.Contains(t, out, "Author: Dev One <dev@example.com>")
	assert.Contains(t, out, "Message: Add token validation")
	assert.Contains(t, out, "- modify: internal/auth/middleware.go")
	assert.Contains(t, out, "## Diff 01234567 internal/auth/middleware.go (modify, chunk 1/1, score 0.75)")
	assert.Contains(t, out, "Session ID: session_")

	assert.Equal(t, []string{"auth middleware"}, f.searcher.queried())
}

func TestSearchCodeNoResults(t *testing.T) {
	f := newFixture(t)
	f.searcher.result = searchResult(0)

	out, err := f.registry.Dispatch(context.Background(), ToolSearchCode, map[string]any{"query": "nothing"})
	require.NoError(t, err)

	assert.Contains(t, out, "No matching code was found")
	assert.Contains(t, out, "trigger_repository_update")
	assert.Contains(t, out, "get_indexing_status")
}

func TestSearchCodeRecordsSessionState(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t)
	f.searcher.result = searchResult(0.7,
		fileChunkHit("pkg/db/conn.go", "func Open() {}", 0, 1, 0.7),
	)

	out, err := f.registry.Dispatch(context.Background(), ToolSearchCode, map[string]any{
		"query":     "database connection",
		"sessionId": id,
	})
	require.NoError(t, err)
	assert.Contains(t, out, "Session ID: "+id)

	recent, err := f.sessions.RecentQueries(id, 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, "refined query", recent[0].Query())
	assert.Equal(t, []string{"pkg/db/conn.go"}, recent[0].Results())
	assert.InDelta(t, 0.7, recent[0].RelevanceScore(), 0.001)

	sessCtx, err := f.sessions.Context(id)
	require.NoError(t, err)
	assert.Equal(t, []string{"pkg/db/conn.go"}, sessCtx.LastFiles())
}

func TestSearchCodeSummarizesLongSnippetsWithModel(t *testing.T) {
	f := newFixture(t, withSmallSnippets())
	f.source.available = true
	f.gen.outputs = []string{"Open dials the pool and pings it."}
	long := strings.Repeat("row := scan(next)\n", 20)
	f.searcher.result = searchResult(0.6, fileChunkHit("pkg/db/conn.go", long, 0, 1, 0.6))

	out, err := f.registry.Dispatch(context.Background(), ToolSearchCode, map[string]any{"query": "db"})
	require.NoError(t, err)

	assert.Contains(t, out, "[summarized]")
	assert.Contains(t, out, "Open dials the pool and pings it.")
	assert.NotContains(t, out, "... [truncated]")
	assert.Contains(t, f.gen.userPrompt(0), "Summarize the following content:")
}

func TestSearchCodeTruncatesLongSnippetsWithoutModel(t *testing.T) {
	f := newFixture(t, withSmallSnippets())
	f.source.available = false
	long := strings.Repeat("row := scan(next)\n", 20)
	f.searcher.result = searchResult(0.6, fileChunkHit("pkg/db/conn.go", long, 0, 1, 0.6))

	out, err := f.registry.Dispatch(context.Background(), ToolSearchCode, map[string]any{"query": "db"})
	require.NoError(t, err)

	assert.Contains(t, out, "... [truncated]")
	assert.Zero(t, f.gen.callCount())
}

func TestSearchCodePropagatesRetrievalError(t *testing.T) {
	f := newFixture(t)
	f.searcher.err = errors.New("qdrant unreachable")

	_, err := f.registry.Dispatch(context.Background(), ToolSearchCode, map[string]any{"query": "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qdrant unreachable")
}

func TestRepositoryContextSections(t *testing.T) {
	f := newFixture(t)
	id := f.newSession(t)
	f.searcher.result = searchResult(0.5, fileChunkHit("cmd/serve.go", "func run() {}", 0, 1, 0.5))
	f.diffs.diff = "diff --git a/cmd/serve.go b/cmd/serve.go\n+func run() {}"

	out, err := f.registry.Dispatch(context.Background(), ToolRepositoryContext, map[string]any{
		"query":     "server startup",
		"sessionId": id,
	})
	require.NoError(t, err)

	assert.Contains(t, out, "# Repository Context")
	assert.Contains(t, out, "Topic: server startup")
	assert.Contains(t, out, "## Relevant Code")
	assert.Contains(t, out, "## Recent Repository Changes")
	assert.Contains(t, out, "```diff")
	assert.Contains(t, out, "diff --git a/cmd/serve.go")

	sessCtx, err := f.sessions.Context(id)
	require.NoError(t, err)
	assert.Contains(t, sessCtx.LastDiff(), "diff --git a/cmd/serve.go")
}

func TestRepositoryContextToleratesDiffFailure(t *testing.T) {
	f := newFixture(t)
	f.searcher.result = searchResult(0)
	f.diffs.err = errors.New("no repository")

	out, err := f.registry.Dispatch(context.Background(), ToolRepositoryContext, map[string]any{"query": "anything"})
	require.NoError(t, err)

	assert.Contains(t, out, "No indexed code matched the topic.")
	assert.Contains(t, out, "Diff unavailable: no repository")
}

func TestRepositoryContextSummarizesSessionActivity(t *testing.T) {
	f := newFixture(t)
	f.source.available = true
	f.gen.outputs = []string{"The session has explored server startup."}
	f.searcher.result = searchResult(0.5, fileChunkHit("cmd/serve.go", "func run() {}", 0, 1, 0.5))
	f.diffs.diff = "+frame"

	out, err := f.registry.Dispatch(context.Background(), ToolRepositoryContext, map[string]any{"query": "server startup"})
	require.NoError(t, err)

	assert.Contains(t, out, "## Recent Session Activity")
	assert.Contains(t, out, "The session has explored server startup.")
	assert.Contains(t, f.gen.userPrompt(0), "Recent searches in this session:")
}

func TestRepositoryContextElidesActivityWithoutModel(t *testing.T) {
	f := newFixture(t)
	f.source.available = false
	f.searcher.result = searchResult(0.5, fileChunkHit("cmd/serve.go", "func run() {}", 0, 1, 0.5))
	f.diffs.diff = "+frame"

	out, err := f.registry.Dispatch(context.Background(), ToolRepositoryContext, map[string]any{"query": "server startup"})
	require.NoError(t, err)

	assert.NotContains(t, out, "## Recent Session Activity")
}
