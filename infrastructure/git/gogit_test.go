package git_test

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecompass/codecompass/domain/repository"
	"github.com/codecompass/codecompass/infrastructure/git"
)

// repoBuilder assembles throwaway repositories for inspector tests.
type repoBuilder struct {
	t   *testing.T
	dir string
	wt  *gogit.Worktree
}

func newRepoBuilder(t *testing.T) *repoBuilder {
	t.Helper()
	dir := t.TempDir()
	repo, err := gogit.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)
	return &repoBuilder{t: t, dir: dir, wt: wt}
}

func (b *repoBuilder) write(path string, content []byte) {
	b.t.Helper()
	full := filepath.Join(b.dir, path)
	require.NoError(b.t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(b.t, os.WriteFile(full, content, 0o644))
	_, err := b.wt.Add(path)
	require.NoError(b.t, err)
}

func (b *repoBuilder) remove(path string) {
	b.t.Helper()
	_, err := b.wt.Remove(path)
	require.NoError(b.t, err)
}

func (b *repoBuilder) commit(message string, when time.Time) string {
	b.t.Helper()
	hash, err := b.wt.Commit(message, &gogit.CommitOptions{
		Author: &object.Signature{Name: "Test Author", Email: "author@example.com", When: when},
	})
	require.NoError(b.t, err)
	return hash.String()
}

func newInspector(dir string) *git.GoGitInspector {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return git.NewGoGitInspector(dir, 3, 3000, logger)
}

func TestGoGitInspectorValidateRepository(t *testing.T) {
	ctx := context.Background()

	t.Run("accepts a repository with commits", func(t *testing.T) {
		b := newRepoBuilder(t)
		b.write("main.go", []byte("package main\n"))
		b.commit("initial", time.Now())

		assert.NoError(t, newInspector(b.dir).ValidateRepository(ctx))
	})

	t.Run("rejects a plain directory", func(t *testing.T) {
		err := newInspector(t.TempDir()).ValidateRepository(ctx)

		require.ErrorIs(t, err, git.ErrNoRepository)
	})

	t.Run("rejects a repository without commits", func(t *testing.T) {
		dir := t.TempDir()
		_, err := gogit.PlainInit(dir, false)
		require.NoError(t, err)

		err = newInspector(dir).ValidateRepository(ctx)

		require.ErrorIs(t, err, git.ErrNoCommits)
	})
}

func TestGoGitInspectorListFiles(t *testing.T) {
	ctx := context.Background()

	b := newRepoBuilder(t)
	b.write("main.go", []byte("package main\n"))
	b.write("internal/server/server.go", []byte("package server\n"))
	b.write("docs/guide.md", []byte("# Guide\n"))
	b.commit("initial", time.Now())

	paths, err := newInspector(b.dir).ListFiles(ctx)

	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main.go", "internal/server/server.go", "docs/guide.md"}, paths)
}

func TestGoGitInspectorCommitHistory(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	setup := func(t *testing.T) (*repoBuilder, []string) {
		b := newRepoBuilder(t)
		b.write("main.go", []byte("package main\n\nfunc main() {}\n"))
		b.write("util.go", []byte("package main\n"))
		first := b.commit("initial commit", base)

		b.write("main.go", []byte("package main\n\nfunc main() { run() }\n"))
		second := b.commit("wire run loop", base.Add(time.Hour))

		b.remove("util.go")
		third := b.commit("drop unused util", base.Add(2*time.Hour))

		return b, []string{first, second, third}
	}

	t.Run("walks newest first", func(t *testing.T) {
		b, shas := setup(t)

		details, err := newInspector(b.dir).CommitHistory(ctx)

		require.NoError(t, err)
		require.Len(t, details, 3)
		assert.Equal(t, shas[2], details[0].OID())
		assert.Equal(t, shas[0], details[2].OID())
		assert.Equal(t, "drop unused util", details[0].ShortMessage())
	})

	t.Run("caps the walk at count", func(t *testing.T) {
		b, shas := setup(t)

		details, err := newInspector(b.dir).CommitHistory(ctx, repository.WithCount(2))

		require.NoError(t, err)
		require.Len(t, details, 2)
		assert.Equal(t, shas[2], details[0].OID())
		assert.Equal(t, shas[1], details[1].OID())
	})

	t.Run("filters by since", func(t *testing.T) {
		b, shas := setup(t)

		details, err := newInspector(b.dir).CommitHistory(ctx, repository.WithSince(base.Add(90*time.Minute)))

		require.NoError(t, err)
		require.Len(t, details, 1)
		assert.Equal(t, shas[2], details[0].OID())
	})

	t.Run("records parent links", func(t *testing.T) {
		b, shas := setup(t)

		details, err := newInspector(b.dir).CommitHistory(ctx)

		require.NoError(t, err)
		assert.Equal(t, []string{shas[1]}, details[0].Parents())
		assert.True(t, details[2].IsInitial())
	})

	t.Run("initial commit lists every file as an addition", func(t *testing.T) {
		b, _ := setup(t)

		details, err := newInspector(b.dir).CommitHistory(ctx)

		require.NoError(t, err)
		initial := details[2]
		require.Len(t, initial.ChangedFiles(), 2)
		for _, f := range initial.ChangedFiles() {
			assert.Equal(t, repository.ChangeTypeAdd, f.ChangeType())
			assert.NotEmpty(t, f.NewBlobOID())
			assert.Empty(t, f.OldBlobOID())
		}
	})

	t.Run("classifies deletions", func(t *testing.T) {
		b, _ := setup(t)

		details, err := newInspector(b.dir).CommitHistory(ctx)

		require.NoError(t, err)
		removal := details[0].ChangedFiles()
		require.Len(t, removal, 1)
		assert.Equal(t, "util.go", removal[0].Path())
		assert.Equal(t, repository.ChangeTypeDelete, removal[0].ChangeType())
	})

	t.Run("omits diff text unless requested", func(t *testing.T) {
		b, _ := setup(t)

		details, err := newInspector(b.dir).CommitHistory(ctx)

		require.NoError(t, err)
		for _, d := range details {
			for _, f := range d.ChangedFiles() {
				assert.Empty(t, f.Diff())
			}
		}
	})

	t.Run("carries unified diffs when requested", func(t *testing.T) {
		b, _ := setup(t)

		details, err := newInspector(b.dir).CommitHistory(ctx, repository.WithDiffs())

		require.NoError(t, err)
		modify := details[1].ChangedFiles()
		require.Len(t, modify, 1)
		assert.Equal(t, "main.go", modify[0].Path())
		assert.Equal(t, repository.ChangeTypeModify, modify[0].ChangeType())
		assert.Contains(t, modify[0].Diff(), "-func main() {}")
		assert.Contains(t, modify[0].Diff(), "+func main() { run() }")
	})

	t.Run("resolves a named ref", func(t *testing.T) {
		b, shas := setup(t)

		details, err := newInspector(b.dir).CommitHistory(ctx, repository.WithRef("master"), repository.WithCount(1))

		require.NoError(t, err)
		require.Len(t, details, 1)
		assert.Equal(t, shas[2], details[0].OID())
	})

	t.Run("rejects an unknown ref", func(t *testing.T) {
		b, _ := setup(t)

		_, err := newInspector(b.dir).CommitHistory(ctx, repository.WithRef("no-such-branch"))

		require.ErrorIs(t, err, git.ErrBranchNotFound)
	})
}

func TestGoGitInspectorRepositoryDiff(t *testing.T) {
	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("reports a missing repository", func(t *testing.T) {
		diff, err := newInspector(t.TempDir()).RepositoryDiff(ctx)

		require.NoError(t, err)
		assert.Equal(t, git.NoRepositoryText, diff)
	})

	t.Run("reports an empty repository", func(t *testing.T) {
		dir := t.TempDir()
		_, err := gogit.PlainInit(dir, false)
		require.NoError(t, err)

		diff, err := newInspector(dir).RepositoryDiff(ctx)

		require.NoError(t, err)
		assert.Equal(t, git.NoPreviousCommitsText, diff)
	})

	t.Run("reports a single commit", func(t *testing.T) {
		b := newRepoBuilder(t)
		b.write("main.go", []byte("package main\n"))
		b.commit("initial", base)

		diff, err := newInspector(b.dir).RepositoryDiff(ctx)

		require.NoError(t, err)
		assert.Equal(t, git.NoPreviousCommitsText, diff)
	})

	t.Run("renders the last change", func(t *testing.T) {
		b := newRepoBuilder(t)
		b.write("main.go", []byte("package main\n\nfunc main() {}\n"))
		b.commit("initial", base)
		b.write("main.go", []byte("package main\n\nfunc main() { serve() }\n"))
		b.commit("serve", base.Add(time.Hour))

		diff, err := newInspector(b.dir).RepositoryDiff(ctx)

		require.NoError(t, err)
		assert.Contains(t, diff, "diff --git a/main.go b/main.go")
		assert.Contains(t, diff, "@@")
		assert.Contains(t, diff, "+func main() { serve() }")
	})

	t.Run("reports binary-only changes", func(t *testing.T) {
		b := newRepoBuilder(t)
		b.write("logo.bin", []byte{0x00, 0x01, 0x02})
		b.write("main.go", []byte("package main\n"))
		b.commit("initial", base)
		b.write("logo.bin", []byte{0x00, 0x05, 0x06, 0x07})
		b.commit("update logo", base.Add(time.Hour))

		diff, err := newInspector(b.dir).RepositoryDiff(ctx)

		require.NoError(t, err)
		assert.Equal(t, git.NoTextualChangesText, diff)
	})

	t.Run("truncates long diffs", func(t *testing.T) {
		b := newRepoBuilder(t)
		b.write("big.txt", []byte("start\n"))
		b.commit("initial", base)
		b.write("big.txt", []byte(strings.Repeat("padding line\n", 200)))
		b.commit("pad", base.Add(time.Hour))

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		inspector := git.NewGoGitInspector(b.dir, 3, 80, logger)

		diff, err := inspector.RepositoryDiff(ctx)

		require.NoError(t, err)
		assert.True(t, strings.HasSuffix(diff, git.DiffTruncationMarker), "got %q", diff)
	})
}
