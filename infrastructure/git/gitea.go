package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	giteagit "code.gitea.io/gitea/modules/git"
	"code.gitea.io/gitea/modules/git/gitcmd"
	"code.gitea.io/gitea/modules/setting"

	"github.com/codecompass/codecompass/domain/repository"
	"github.com/codecompass/codecompass/domain/service"
)

// GiteaInspector reads the repository through gitea's git module,
// which shells out to the native git binary. It handles large
// histories faster than the pure-Go backend.
type GiteaInspector struct {
	repoPath     string
	contextLines int
	maxDiffLen   int
	logger       *slog.Logger
}

var giteaInitOnce sync.Once
var giteaInitErr error

// NewGiteaInspector creates a GiteaInspector for the repository at
// repoPath. It initializes the gitea git module once, verifying the
// git binary is available.
func NewGiteaInspector(repoPath string, contextLines, maxDiffLength int, logger *slog.Logger) (*GiteaInspector, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if _, err := exec.LookPath("git"); err != nil {
		return nil, fmt.Errorf("git is not installed or not in PATH: install git or use the gogit backend")
	}

	giteaInitOnce.Do(func() {
		// Gitea's git module requires a HomePath for its git environment.
		// Use a temporary directory so git config is isolated.
		home, err := os.MkdirTemp("", "codecompass-git-home-*")
		if err != nil {
			giteaInitErr = fmt.Errorf("create git home directory: %w", err)
			return
		}
		setting.Git.HomePath = home

		giteaInitErr = giteagit.InitSimple()
	})
	if giteaInitErr != nil {
		return nil, fmt.Errorf("init git: %w", giteaInitErr)
	}

	return &GiteaInspector{
		repoPath:     repoPath,
		contextLines: contextLines,
		maxDiffLen:   maxDiffLength,
		logger:       logger,
	}, nil
}

// ValidateRepository verifies the path hosts a Git repository with at
// least one commit.
func (g *GiteaInspector) ValidateRepository(ctx context.Context) error {
	repo, err := g.openRepo(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = repo.Close() }()

	sha, err := repo.GetRefCommitID("HEAD")
	if err != nil {
		return fmt.Errorf("%w: %s", ErrNoCommits, g.repoPath)
	}

	g.logger.Debug("repository validated",
		slog.String("path", g.repoPath),
		slog.String("head", sha),
	)
	return nil
}

// ListFiles returns the repository-relative paths tracked at HEAD.
func (g *GiteaInspector) ListFiles(ctx context.Context) ([]string, error) {
	repo, err := g.openRepo(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = repo.Close() }()

	sha, err := repo.GetRefCommitID("HEAD")
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrNoCommits, g.repoPath)
	}

	commit, err := repo.GetCommit(sha)
	if err != nil {
		return nil, fmt.Errorf("get head commit: %w", err)
	}

	entries, err := commit.ListEntriesRecursiveWithSize()
	if err != nil {
		return nil, fmt.Errorf("list tree entries: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || entry.IsSubModule() {
			continue
		}
		paths = append(paths, entry.Name())
	}

	return paths, nil
}

// CommitHistory walks commits newest first, bounded by the options.
func (g *GiteaInspector) CommitHistory(ctx context.Context, opts ...repository.HistoryOption) ([]repository.CommitDetail, error) {
	options := repository.NewHistoryOptions(opts...)

	repo, err := g.openRepo(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = repo.Close() }()

	ref, err := g.resolveRef(repo, options.Ref())
	if err != nil {
		return nil, err
	}

	cmd := gitcmd.NewCommand("log", commitLogFormat)
	if options.Count() > 0 {
		cmd = cmd.AddOptionFormat("--max-count=%d", options.Count())
	}
	if !options.Since().IsZero() {
		cmd = cmd.AddOptionFormat("--since=%s", options.Since().Format(time.RFC3339))
	}

	stdout, _, err := cmd.AddDynamicArguments(ref).
		RunStdString(ctx, &gitcmd.RunOpts{Dir: g.repoPath})
	if err != nil {
		return nil, fmt.Errorf("get commit log: %w", err)
	}

	records := parseCommitLog(stdout)
	details := make([]repository.CommitDetail, 0, len(records))
	for _, record := range records {
		changed, err := g.changedFiles(ctx, record.sha, options.Diffs())
		if err != nil {
			return nil, err
		}
		details = append(details, repository.NewCommitDetail(
			record.sha,
			record.message,
			repository.NewAuthor(record.authorName, record.authorEmail),
			repository.NewAuthor(record.committerName, record.committerEmail),
			record.authoredAt,
			record.parents,
			changed,
		))
	}

	return details, nil
}

// RepositoryDiff renders the diff between the two most recent commits
// on HEAD, clipped to the configured maximum length.
func (g *GiteaInspector) RepositoryDiff(ctx context.Context) (string, error) {
	repo, err := g.openRepo(ctx)
	if err != nil {
		if errors.Is(err, ErrNoRepository) {
			return NoRepositoryText, nil
		}
		return "", err
	}
	defer func() { _ = repo.Close() }()

	sha, err := repo.GetRefCommitID("HEAD")
	if err != nil {
		return NoPreviousCommitsText, nil
	}

	commit, err := repo.GetCommit(sha)
	if err != nil {
		return "", fmt.Errorf("get head commit: %w", err)
	}
	if commit.ParentCount() == 0 {
		return NoPreviousCommitsText, nil
	}

	stdout, _, err := gitcmd.NewCommand("diff").
		AddOptionFormat("-U%d", g.contextLines).
		AddDynamicArguments("HEAD~1", "HEAD").
		RunStdString(ctx, &gitcmd.RunOpts{Dir: g.repoPath})
	if err != nil {
		return "", fmt.Errorf("diff commits: %w", err)
	}

	if !hasTextualHunks(stdout) {
		return NoTextualChangesText, nil
	}

	return truncateDiff(stdout, g.maxDiffLen), nil
}

// openRepo opens the repository, mapping the not-a-repository case to
// ErrNoRepository.
func (g *GiteaInspector) openRepo(ctx context.Context) (*giteagit.Repository, error) {
	repo, err := giteagit.OpenRepository(ctx, g.repoPath)
	if err != nil {
		if _, statErr := os.Stat(filepath.Join(g.repoPath, ".git")); os.IsNotExist(statErr) {
			return nil, fmt.Errorf("%w: %s", ErrNoRepository, g.repoPath)
		}
		return nil, fmt.Errorf("open repository: %w", err)
	}
	return repo, nil
}

// resolveRef resolves a history starting point to a ref git log can
// use. It checks local branches, then remote branches, then any ref.
func (g *GiteaInspector) resolveRef(repo *giteagit.Repository, ref string) (string, error) {
	if ref == "" || ref == "HEAD" {
		return "HEAD", nil
	}

	if _, err := repo.GetBranchCommitID(ref); err == nil {
		return ref, nil
	}
	if _, err := repo.GetRefCommitID("refs/remotes/origin/" + ref); err == nil {
		return "refs/remotes/origin/" + ref, nil
	}
	if _, err := repo.GetRefCommitID(ref); err == nil {
		return ref, nil
	}

	return "", fmt.Errorf("%w: %s", ErrBranchNotFound, ref)
}

// changedFiles lists what a commit changed against its first parent.
// Initial commits diff against the empty tree via --root.
func (g *GiteaInspector) changedFiles(ctx context.Context, sha string, withDiffs bool) ([]repository.ChangedFile, error) {
	stdout, _, err := gitcmd.NewCommand("diff-tree", "--no-commit-id", "--root", "-r", "--raw").
		AddDynamicArguments(sha).
		RunStdString(ctx, &gitcmd.RunOpts{Dir: g.repoPath})
	if err != nil {
		return nil, fmt.Errorf("diff-tree %s: %w", sha, err)
	}

	var diffs map[string]string
	if withDiffs {
		var patchErr error
		diffs, patchErr = g.commitPatches(ctx, sha)
		if patchErr != nil {
			return nil, patchErr
		}
	}

	var files []repository.ChangedFile
	for _, line := range strings.Split(strings.TrimSpace(stdout), "\n") {
		if line == "" {
			continue
		}
		file, ok := parseRawChange(line)
		if !ok {
			g.logger.Warn("skipping unparseable diff-tree entry", slog.String("line", line))
			continue
		}
		if withDiffs && file.ChangeType().HasDiff() {
			file = repository.NewChangedFile(
				file.Path(), file.ChangeType(), file.OldBlobOID(), file.NewBlobOID(),
				diffs[file.Path()],
			)
		}
		files = append(files, file)
	}

	return files, nil
}

// commitPatches renders a commit's patch once and splits it into
// per-file segments keyed by path.
func (g *GiteaInspector) commitPatches(ctx context.Context, sha string) (map[string]string, error) {
	stdout, _, err := gitcmd.NewCommand("diff-tree", "--no-commit-id", "--root", "-r", "-p").
		AddOptionFormat("-U%d", g.contextLines).
		AddDynamicArguments(sha).
		RunStdString(ctx, &gitcmd.RunOpts{Dir: g.repoPath})
	if err != nil {
		return nil, fmt.Errorf("diff-tree patch %s: %w", sha, err)
	}

	return splitPatchByFile(stdout), nil
}

// splitPatchByFile cuts a multi-file patch on "diff --git" banners.
func splitPatchByFile(patch string) map[string]string {
	segments := make(map[string]string)

	var path string
	var current strings.Builder
	flush := func() {
		if path != "" && current.Len() > 0 {
			segments[path] = current.String()
		}
		current.Reset()
	}

	for _, line := range strings.SplitAfter(patch, "\n") {
		if strings.HasPrefix(line, "diff --git ") {
			flush()
			path = pathFromBanner(strings.TrimRight(line, "\n"))
		}
		if path != "" {
			current.WriteString(line)
		}
	}
	flush()

	return segments
}

// pathFromBanner extracts the post-image path from a
// "diff --git a/<path> b/<path>" banner.
func pathFromBanner(banner string) string {
	idx := strings.Index(banner, " b/")
	if idx == -1 {
		return ""
	}
	return strings.Trim(banner[idx+3:], `"`)
}

// parseRawChange parses one diff-tree --raw line:
//
//	:100644 100644 <old-oid> <new-oid> M\t<path>
func parseRawChange(line string) (repository.ChangedFile, bool) {
	meta, path, found := strings.Cut(line, "\t")
	if !found || path == "" {
		return repository.ChangedFile{}, false
	}

	fields := strings.Fields(meta)
	if len(fields) < 5 {
		return repository.ChangedFile{}, false
	}

	oldOID := fields[2]
	newOID := fields[3]
	if isZeroOID(oldOID) {
		oldOID = ""
	}
	if isZeroOID(newOID) {
		newOID = ""
	}

	var changeType repository.ChangeType
	switch fields[4][0] {
	case 'A':
		changeType = repository.ChangeTypeAdd
	case 'D':
		changeType = repository.ChangeTypeDelete
	case 'T':
		changeType = repository.ChangeTypeTypeChange
	default:
		changeType = repository.ChangeTypeModify
	}

	return repository.NewChangedFile(path, changeType, oldOID, newOID, ""), true
}

func isZeroOID(oid string) bool {
	return strings.Trim(oid, "0") == ""
}

// hasTextualHunks reports whether diff output carries at least one
// unified hunk, as opposed to binary-only markers.
func hasTextualHunks(diff string) bool {
	return strings.HasPrefix(diff, "@@ ") || strings.Contains(diff, "\n@@ ")
}

// commitLogFormat is the git log format string for parsing commits.
// Fields are separated by \x00, records by \x01.
const commitLogFormat = "--format=%x01%H%x00%B%x00%an%x00%ae%x00%aI%x00%cn%x00%ce%x00%cI%x00%P"

// commitRecord is one parsed git log entry.
type commitRecord struct {
	sha            string
	message        string
	authorName     string
	authorEmail    string
	authoredAt     time.Time
	committerName  string
	committerEmail string
	committedAt    time.Time
	parents        []string
}

// parseCommitLog parses the output of git log with commitLogFormat.
func parseCommitLog(stdout string) []commitRecord {
	stdout = strings.TrimSpace(stdout)
	if stdout == "" {
		return nil
	}

	var records []commitRecord
	for _, raw := range strings.Split(stdout, "\x01") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}

		fields := strings.SplitN(raw, "\x00", 9)
		if len(fields) < 9 {
			continue
		}

		authoredAt, _ := time.Parse(time.RFC3339, strings.TrimSpace(fields[4]))
		committedAt, _ := time.Parse(time.RFC3339, strings.TrimSpace(fields[7]))

		records = append(records, commitRecord{
			sha:            strings.TrimSpace(fields[0]),
			message:        strings.TrimSpace(fields[1]),
			authorName:     strings.TrimSpace(fields[2]),
			authorEmail:    strings.TrimSpace(fields[3]),
			authoredAt:     authoredAt,
			committerName:  strings.TrimSpace(fields[5]),
			committerEmail: strings.TrimSpace(fields[6]),
			committedAt:    committedAt,
			parents:        strings.Fields(strings.TrimSpace(fields[8])),
		})
	}

	return records
}

// Ensure GiteaInspector implements Inspector.
var _ service.Inspector = (*GiteaInspector)(nil)
