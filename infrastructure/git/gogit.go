package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	gogit "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/codecompass/codecompass/domain/repository"
	"github.com/codecompass/codecompass/domain/service"
)

// GoGitInspector reads the repository with the pure-Go go-git library.
// It is the default backend and needs no git binary on the host.
type GoGitInspector struct {
	repoPath     string
	contextLines int
	maxDiffLen   int
	logger       *slog.Logger
}

// NewGoGitInspector creates a GoGitInspector for the repository at
// repoPath. contextLines sets the unified diff context; maxDiffLength
// caps RepositoryDiff output (0 disables the cap).
func NewGoGitInspector(repoPath string, contextLines, maxDiffLength int, logger *slog.Logger) *GoGitInspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &GoGitInspector{
		repoPath:     repoPath,
		contextLines: contextLines,
		maxDiffLen:   maxDiffLength,
		logger:       logger,
	}
}

// ValidateRepository verifies the path hosts a Git repository with at
// least one commit.
func (g *GoGitInspector) ValidateRepository(_ context.Context) error {
	repo, err := g.openRepo()
	if err != nil {
		return err
	}

	commit, err := headCommit(repo)
	if err != nil {
		if errors.Is(err, ErrNoCommits) {
			return fmt.Errorf("%w: %s", ErrNoCommits, g.repoPath)
		}
		return err
	}

	g.logger.Debug("repository validated",
		slog.String("path", g.repoPath),
		slog.String("head", commit.Hash.String()),
	)
	return nil
}

// ListFiles returns the repository-relative paths tracked at HEAD.
func (g *GoGitInspector) ListFiles(_ context.Context) ([]string, error) {
	repo, err := g.openRepo()
	if err != nil {
		return nil, err
	}

	commit, err := headCommit(repo)
	if err != nil {
		return nil, err
	}

	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("get head tree: %w", err)
	}

	var paths []string
	err = tree.Files().ForEach(func(f *object.File) error {
		paths = append(paths, f.Name)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate files: %w", err)
	}

	return paths, nil
}

// CommitHistory walks commits newest first, bounded by the options.
func (g *GoGitInspector) CommitHistory(ctx context.Context, opts ...repository.HistoryOption) ([]repository.CommitDetail, error) {
	options := repository.NewHistoryOptions(opts...)

	repo, err := g.openRepo()
	if err != nil {
		return nil, err
	}

	from, err := g.resolveStart(repo, options.Ref())
	if err != nil {
		return nil, err
	}

	logOpts := &gogit.LogOptions{From: from}
	if !options.Since().IsZero() {
		since := options.Since()
		logOpts.Since = &since
	}

	iter, err := repo.Log(logOpts)
	if err != nil {
		return nil, fmt.Errorf("get commit log: %w", err)
	}
	defer iter.Close()

	var details []repository.CommitDetail
	err = iter.ForEach(func(c *object.Commit) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		detail, err := g.commitDetail(ctx, c, options.Diffs())
		if err != nil {
			return err
		}
		details = append(details, detail)
		if options.Count() > 0 && len(details) >= options.Count() {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		return nil, fmt.Errorf("iterate commits: %w", err)
	}

	return details, nil
}

// RepositoryDiff renders the diff between the two most recent commits
// on HEAD, clipped to the configured maximum length.
func (g *GoGitInspector) RepositoryDiff(ctx context.Context) (string, error) {
	repo, err := g.openRepo()
	if err != nil {
		if errors.Is(err, ErrNoRepository) {
			return NoRepositoryText, nil
		}
		return "", err
	}

	commit, err := headCommit(repo)
	if err != nil {
		if errors.Is(err, ErrNoCommits) {
			return NoPreviousCommitsText, nil
		}
		return "", err
	}
	if commit.NumParents() == 0 {
		return NoPreviousCommitsText, nil
	}

	files, err := g.changedFiles(ctx, commit, true)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	textual := false
	for _, f := range files {
		if f.Diff() == "" {
			continue
		}
		b.WriteString(f.Diff())
		if !isBinaryMarker(f.Diff()) {
			textual = true
		}
	}
	if !textual {
		return NoTextualChangesText, nil
	}

	return truncateDiff(b.String(), g.maxDiffLen), nil
}

// openRepo opens the repository, mapping the not-a-repository case to
// ErrNoRepository.
func (g *GoGitInspector) openRepo() (*gogit.Repository, error) {
	repo, err := gogit.PlainOpen(g.repoPath)
	if err != nil {
		if errors.Is(err, gogit.ErrRepositoryNotExists) {
			return nil, fmt.Errorf("%w: %s", ErrNoRepository, g.repoPath)
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return repo, nil
}

// headCommit resolves HEAD to its commit, mapping an unborn HEAD to
// ErrNoCommits.
func headCommit(repo *gogit.Repository) (*object.Commit, error) {
	head, err := repo.Head()
	if err != nil {
		if errors.Is(err, plumbing.ErrReferenceNotFound) {
			return nil, ErrNoCommits
		}
		return nil, fmt.Errorf("resolve HEAD: %w", err)
	}

	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("get head commit: %w", err)
	}
	return commit, nil
}

// resolveStart turns the history starting ref into a commit hash.
func (g *GoGitInspector) resolveStart(repo *gogit.Repository, ref string) (plumbing.Hash, error) {
	if ref == "" || ref == "HEAD" {
		commit, err := headCommit(repo)
		if err != nil {
			if errors.Is(err, ErrNoCommits) {
				return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrNoCommits, g.repoPath)
			}
			return plumbing.ZeroHash, err
		}
		return commit.Hash, nil
	}

	// Try local branch, then remote branch, then any revision (tags,
	// abbreviated hashes).
	if r, err := repo.Reference(plumbing.NewBranchReferenceName(ref), true); err == nil {
		return r.Hash(), nil
	}
	if r, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", ref), true); err == nil {
		return r.Hash(), nil
	}
	if hash, err := repo.ResolveRevision(plumbing.Revision(ref)); err == nil {
		return *hash, nil
	}

	return plumbing.ZeroHash, fmt.Errorf("%w: %s", ErrBranchNotFound, ref)
}

// commitDetail converts a go-git commit into a CommitDetail, computing
// changed files against the first parent.
func (g *GoGitInspector) commitDetail(ctx context.Context, c *object.Commit, withDiffs bool) (repository.CommitDetail, error) {
	parents := make([]string, 0, c.NumParents())
	for _, h := range c.ParentHashes {
		parents = append(parents, h.String())
	}

	changed, err := g.changedFiles(ctx, c, withDiffs)
	if err != nil {
		return repository.CommitDetail{}, err
	}

	return repository.NewCommitDetail(
		c.Hash.String(),
		c.Message,
		repository.NewAuthor(c.Author.Name, c.Author.Email),
		repository.NewAuthor(c.Committer.Name, c.Committer.Email),
		c.Author.When,
		parents,
		changed,
	), nil
}

// changedFiles diffs a commit against its first parent. Initial
// commits diff against the empty tree, so every file appears as an
// addition.
func (g *GoGitInspector) changedFiles(ctx context.Context, c *object.Commit, withDiffs bool) ([]repository.ChangedFile, error) {
	commitTree, err := c.Tree()
	if err != nil {
		return nil, fmt.Errorf("get commit tree: %w", err)
	}

	parentTree := &object.Tree{}
	if c.NumParents() > 0 {
		parent, err := c.Parent(0)
		if err != nil {
			return nil, fmt.Errorf("get parent commit: %w", err)
		}
		parentTree, err = parent.Tree()
		if err != nil {
			return nil, fmt.Errorf("get parent tree: %w", err)
		}
	}

	changes, err := parentTree.DiffContext(ctx, commitTree)
	if err != nil {
		return nil, fmt.Errorf("compute tree diff: %w", err)
	}

	var files []repository.ChangedFile
	for _, change := range changes {
		file, err := g.changedFile(change, withDiffs)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	return files, nil
}

func (g *GoGitInspector) changedFile(change *object.Change, withDiffs bool) (repository.ChangedFile, error) {
	action, err := change.Action()
	if err != nil {
		return repository.ChangedFile{}, fmt.Errorf("classify change: %w", err)
	}

	path := change.To.Name
	oldOID, newOID := "", ""
	var changeType repository.ChangeType

	switch action {
	case merkletrie.Insert:
		changeType = repository.ChangeTypeAdd
		newOID = change.To.TreeEntry.Hash.String()
	case merkletrie.Delete:
		changeType = repository.ChangeTypeDelete
		path = change.From.Name
		oldOID = change.From.TreeEntry.Hash.String()
	default:
		changeType = repository.ChangeTypeModify
		oldOID = change.From.TreeEntry.Hash.String()
		newOID = change.To.TreeEntry.Hash.String()
		fromMode := change.From.TreeEntry.Mode
		toMode := change.To.TreeEntry.Mode
		if fromMode != toMode && (!fromMode.IsFile() || !toMode.IsFile()) {
			changeType = repository.ChangeTypeTypeChange
		}
	}

	diffText := ""
	if withDiffs && changeType.HasDiff() {
		diffText, err = g.fileDiff(change, changeType, path)
		if err != nil {
			return repository.ChangedFile{}, err
		}
	}

	return repository.NewChangedFile(path, changeType, oldOID, newOID, diffText), nil
}

// fileDiff renders the unified diff for one change. Binary content on
// either side short-circuits to the binary marker without loading the
// full blob text.
func (g *GoGitInspector) fileDiff(change *object.Change, changeType repository.ChangeType, path string) (string, error) {
	from, to, err := change.Files()
	if err != nil {
		return "", fmt.Errorf("load changed files: %w", err)
	}

	var oldContent, newContent []byte
	if from != nil {
		binary, err := from.IsBinary()
		if err != nil {
			return "", fmt.Errorf("probe %s: %w", path, err)
		}
		if binary {
			return renderBinaryFileDiff(path, changeType), nil
		}
		text, err := from.Contents()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		oldContent = []byte(text)
	}
	if to != nil {
		binary, err := to.IsBinary()
		if err != nil {
			return "", fmt.Errorf("probe %s: %w", path, err)
		}
		if binary {
			return renderBinaryFileDiff(path, changeType), nil
		}
		text, err := to.Contents()
		if err != nil {
			return "", fmt.Errorf("read %s: %w", path, err)
		}
		newContent = []byte(text)
	}

	return renderFileDiff(path, changeType, oldContent, newContent, g.contextLines), nil
}

// Ensure GoGitInspector implements Inspector.
var _ service.Inspector = (*GoGitInspector)(nil)
