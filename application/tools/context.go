package tools

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codecompass/codecompass/application/service"
	"github.com/codecompass/codecompass/domain/point"
)

// Context types accepted by request_additional_context.
const (
	ContextMoreResults    = "MORE_SEARCH_RESULTS"
	ContextFullFile       = "FULL_FILE_CONTENT"
	ContextDirListing     = "DIRECTORY_LISTING"
	ContextAdjacentChunks = "ADJACENT_FILE_CHUNKS"
)

// directoryListingCap bounds DIRECTORY_LISTING output.
const directoryListingCap = 50

// moreResultsMultiplier elevates the search limit for
// MORE_SEARCH_RESULTS relative to the configured default.
const moreResultsMultiplier = 2

// additionalContext handles request_additional_context, branching on
// context_type.
func (r *Registry) additionalContext(ctx context.Context, args Args) (string, error) {
	contextType := strings.ToUpper(strings.TrimSpace(args.String("context_type")))
	target := args.String("query_or_path")
	if reasoning := args.String("reasoning"); reasoning != "" {
		r.logger.Debug("additional context requested",
			"context_type", contextType, "target", target, "reasoning", reasoning)
	}

	switch contextType {
	case ContextMoreResults:
		return r.moreResults(ctx, args, target)
	case ContextFullFile:
		return r.fullFileContent(ctx, args, target)
	case ContextDirListing:
		return r.directoryListing(target)
	case ContextAdjacentChunks:
		return r.adjacentChunks(ctx, args, target)
	default:
		return "", fmt.Errorf("%w: unknown context_type %q (expected %s, %s, %s, or %s)",
			ErrInvalidArgument, contextType,
			ContextMoreResults, ContextFullFile, ContextDirListing, ContextAdjacentChunks)
	}
}

// moreResults re-runs the retriever with an elevated result limit.
func (r *Registry) moreResults(ctx context.Context, args Args, query string) (string, error) {
	id, err := r.session(args)
	if err != nil {
		return "", err
	}

	limit := r.cfg.SearchLimit() * moreResultsMultiplier
	result, err := r.retriever.SearchWithRefinement(ctx, query, service.WithLimit(limit))
	if err != nil {
		return "", err
	}
	r.recordQuery(id, result)

	var b strings.Builder
	b.WriteString("# Additional Search Results\n\n")
	fmt.Fprintf(&b, "Query: %s (limit %d)\n\n", query, limit)
	if result.Count() == 0 {
		b.WriteString("No matching code was found even at the elevated limit.\n")
	} else {
		b.WriteString(r.renderResults(ctx, result.Results()))
	}
	return withSession(b.String(), id), nil
}

// fullFileContent returns a repository file, summarized or truncated
// when it exceeds the snippet threshold. A lines argument such as
// "L17-L26,L45" restricts the output to those ranges instead.
func (r *Registry) fullFileContent(ctx context.Context, args Args, relPath string) (string, error) {
	resolved, cleaned, err := r.resolveRepoPath(relPath)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(resolved)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", cleaned, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %s is not a regular file", ErrInvalidArgument, cleaned)
	}

	content, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", cleaned, err)
	}
	text := string(content)

	if lines := args.String("lines"); strings.TrimSpace(lines) != "" {
		filter, err := parseLineFilter(lines)
		if err != nil {
			return "", err
		}
		var b strings.Builder
		fmt.Fprintf(&b, "# File: %s (lines %s)\n\n", cleaned, lines)
		selected := filter.extract(text)
		if selected == "" {
			fmt.Fprintf(&b, "No lines matched %s; the file has %d lines.\n", lines, strings.Count(text, "\n")+1)
			return b.String(), nil
		}
		fmt.Fprintf(&b, "```\n%s\n```\n", truncate(selected, r.cfg.MaxSnippetLength()))
		return b.String(), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# File: %s\n\n", cleaned)
	if len(text) > r.cfg.MaxSnippetLength() {
		if r.generators.SuggestionAvailable(ctx) {
			summary, sumErr := r.summarize(ctx, text)
			if sumErr == nil {
				fmt.Fprintf(&b, "The file is %d bytes; summarized below.\n\n%s\n", len(text), strings.TrimSpace(summary))
				return b.String(), nil
			}
			r.logger.Warn("file summarization failed, truncating", "path", cleaned, "error", sumErr)
		}
		fmt.Fprintf(&b, "The file is %d bytes; showing the first %d characters.\n\n", len(text), r.cfg.MaxSnippetLength())
		fmt.Fprintf(&b, "```\n%s\n```\n", truncate(text, r.cfg.MaxSnippetLength()))
		return b.String(), nil
	}

	fmt.Fprintf(&b, "```\n%s\n```\n", text)
	return b.String(), nil
}

// directoryListing enumerates a repository directory with type tags,
// capped with a truncation note.
func (r *Registry) directoryListing(relPath string) (string, error) {
	if relPath == "" || relPath == "." {
		relPath = "."
	}
	resolved, cleaned, err := r.resolveRepoPath(relPath)
	if err != nil {
		return "", err
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", cleaned, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	var b strings.Builder
	fmt.Fprintf(&b, "# Directory: %s\n\n", cleaned)
	if len(entries) == 0 {
		b.WriteString("(empty)\n")
		return b.String(), nil
	}

	shown := entries
	if len(shown) > directoryListingCap {
		shown = shown[:directoryListingCap]
	}
	for _, entry := range shown {
		tag := "file"
		if entry.IsDir() {
			tag = "dir"
		}
		fmt.Fprintf(&b, "- [%s] %s\n", tag, entry.Name())
	}
	if extra := len(entries) - len(shown); extra > 0 {
		fmt.Fprintf(&b, "\n... and %d more entries (listing truncated at %d)\n", extra, directoryListingCap)
	}
	return b.String(), nil
}

// adjacentChunks fetches the indexed chunks neighboring a chunk the
// caller has already seen.
func (r *Registry) adjacentChunks(ctx context.Context, args Args, path string) (string, error) {
	index, ok := args.Int("chunk_index")
	if !ok {
		return "", fmt.Errorf("%w: chunk_index is required for %s", ErrInvalidArgument, ContextAdjacentChunks)
	}

	wanted := make([]int, 0, 2)
	if index > 0 {
		wanted = append(wanted, index-1)
	}
	wanted = append(wanted, index+1)

	filter := point.NewFilter().
		WithDataType(point.DataTypeFileChunk).
		WithFilepaths(path).
		WithChunkIndexes(wanted...)

	found := make(map[int]point.FileChunkPayload)
	totalChunks := 0
	offset := ""
	for {
		page, err := r.store.Scroll(ctx, filter, 16, offset)
		if err != nil {
			return "", fmt.Errorf("scroll chunks for %s: %w", path, err)
		}
		for _, p := range page.Points() {
			payload, isChunk := p.Payload().(point.FileChunkPayload)
			if !isChunk {
				continue
			}
			found[payload.ChunkIndex()] = payload
			totalChunks = payload.TotalChunks()
		}
		if !page.HasMore() {
			break
		}
		offset = page.NextOffset()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "# Adjacent Chunks: %s (around chunk %d)\n\n", path, index)

	if len(found) == 0 {
		fmt.Fprintf(&b, "No indexed chunks found next to chunk %d. ", index)
		b.WriteString("The file may not be indexed under this exact path; search_code can locate it.\n")
		return b.String(), nil
	}

	if index == 0 {
		b.WriteString("Chunk 0 is the first chunk of the file; there is no preceding chunk.\n\n")
	}
	for _, i := range wanted {
		payload, ok := found[i]
		if !ok {
			if totalChunks > 0 && i >= totalChunks {
				fmt.Fprintf(&b, "No chunk %d: the file has %d chunks.\n\n", i, totalChunks)
			} else {
				fmt.Fprintf(&b, "Chunk %d is not indexed.\n\n", i)
			}
			continue
		}
		fmt.Fprintf(&b, "## Chunk %d/%d\n\n```\n%s\n```\n\n", payload.ChunkIndex()+1, payload.TotalChunks(), payload.Chunk())
	}
	return strings.TrimRight(b.String(), "\n") + "\n", nil
}

// resolveRepoPath resolves a repository-relative path against the
// registry's repository root.
func (r *Registry) resolveRepoPath(relPath string) (resolved, cleaned string, err error) {
	return ResolveWithin(r.repoPath, relPath)
}

// ResolveWithin resolves relPath against root, rejecting traversal
// outside root and symlinks escaping it. It returns the resolved
// filesystem path and the cleaned relative path.
func ResolveWithin(root, relPath string) (resolved, cleaned string, err error) {
	if strings.TrimSpace(relPath) == "" {
		return "", "", fmt.Errorf("%w: path must not be empty", ErrInvalidArgument)
	}
	if filepath.IsAbs(relPath) {
		return "", "", fmt.Errorf("%w: %s is absolute", ErrPathOutsideRepo, relPath)
	}

	cleaned = filepath.Clean(relPath)
	if cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %s", ErrPathOutsideRepo, relPath)
	}

	rootResolved, err := filepath.EvalSymlinks(root)
	if err != nil {
		return "", "", fmt.Errorf("resolve repository root: %w", err)
	}

	resolved, err = filepath.EvalSymlinks(filepath.Join(rootResolved, cleaned))
	if err != nil {
		if os.IsNotExist(err) {
			return "", "", fmt.Errorf("%s: %w", cleaned, fs.ErrNotExist)
		}
		return "", "", fmt.Errorf("resolve %s: %w", cleaned, err)
	}

	rel, err := filepath.Rel(rootResolved, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", "", fmt.Errorf("%w: %s resolves outside the repository", ErrPathOutsideRepo, relPath)
	}
	return resolved, cleaned, nil
}
