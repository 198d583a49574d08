package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/codecompass/codecompass/application/service"
	"github.com/codecompass/codecompass/domain/point"
	"github.com/codecompass/codecompass/domain/session"
)

// recentQueriesShown bounds the session activity section.
const recentQueriesShown = 5

// searchCode handles search_code: refinement search, session recording,
// and snippet rendering with model-backed summaries for long hits.
func (r *Registry) searchCode(ctx context.Context, args Args) (string, error) {
	query := args.String("query")
	id, err := r.session(args)
	if err != nil {
		return "", err
	}

	result, err := r.retriever.SearchWithRefinement(ctx, query)
	if err != nil {
		return "", err
	}
	r.recordQuery(id, result)

	var b strings.Builder
	b.WriteString("# Code Search Results\n\n")
	fmt.Fprintf(&b, "Query: %s\n", query)
	if refined := result.RefinedQuery(); refined != query {
		fmt.Fprintf(&b, "Refined query: %s\n", refined)
	}
	fmt.Fprintf(&b, "Average relevance: %.2f\n\n", result.RelevanceScore())

	if result.Count() == 0 {
		b.WriteString("No matching code was found. If the repository was recently updated, ")
		b.WriteString("trigger_repository_update refreshes the index and get_indexing_status reports progress.\n")
	} else {
		b.WriteString(r.renderResults(ctx, result.Results()))
	}
	return withSession(b.String(), id), nil
}

// repositoryContext handles get_repository_context: relevant code, the
// latest repository diff, and a summary of recent session activity.
func (r *Registry) repositoryContext(ctx context.Context, args Args) (string, error) {
	query := args.String("query")
	id, err := r.session(args)
	if err != nil {
		return "", err
	}

	result, err := r.retriever.SearchWithRefinement(ctx, query)
	if err != nil {
		return "", err
	}
	r.recordQuery(id, result)

	var b strings.Builder
	b.WriteString("# Repository Context\n\n")
	fmt.Fprintf(&b, "Topic: %s\n\n", query)

	b.WriteString("## Relevant Code\n\n")
	if result.Count() == 0 {
		b.WriteString("No indexed code matched the topic.\n\n")
	} else {
		b.WriteString(r.renderResults(ctx, result.Results()))
	}

	b.WriteString("## Recent Repository Changes\n\n")
	diff, diffErr := r.diffs.RepositoryDiff(ctx)
	switch {
	case diffErr != nil:
		r.logger.Warn("repository diff unavailable", "error", diffErr)
		fmt.Fprintf(&b, "Diff unavailable: %v\n\n", diffErr)
	default:
		diff = truncate(diff, r.cfg.MaxDiffLength())
		fmt.Fprintf(&b, "```diff\n%s\n```\n\n", diff)
		r.updateSessionDiff(id, diff)
	}

	if summary := r.sessionActivity(ctx, id); summary != "" {
		b.WriteString("## Recent Session Activity\n\n")
		b.WriteString(summary)
		b.WriteString("\n")
	}

	return withSession(b.String(), id), nil
}

// renderResults renders scored points as markdown sections. Content
// beyond the snippet threshold is summarized when a model is available,
// truncated otherwise.
func (r *Registry) renderResults(ctx context.Context, results []point.ScoredPoint) string {
	modelAvailable := r.generators.SuggestionAvailable(ctx)

	var b strings.Builder
	for _, hit := range results {
		switch payload := hit.Payload().(type) {
		case point.FileChunkPayload:
			fmt.Fprintf(&b, "## %s (chunk %d/%d, score %.2f)\n\n",
				payload.Filepath(), payload.ChunkIndex()+1, payload.TotalChunks(), hit.Score())
			fmt.Fprintf(&b, "```\n%s\n```\n\n", r.snippet(ctx, payload.Chunk(), modelAvailable))
		case point.CommitInfoPayload:
			fmt.Fprintf(&b, "## Commit %s (score %.2f)\n\n", shortOID(payload.OID()), hit.Score())
			fmt.Fprintf(&b, "Author: %s\n", payload.Author().String())
			fmt.Fprintf(&b, "Date: %s\n", payload.Date().UTC().Format("2006-01-02 15:04"))
			fmt.Fprintf(&b, "Message: %s\n", strings.TrimSpace(payload.Message()))
			if files := payload.ChangedFiles(); len(files) > 0 {
				b.WriteString("Changed files:\n")
				for _, f := range files {
					fmt.Fprintf(&b, "- %s\n", f)
				}
			}
			b.WriteString("\n")
		case point.DiffChunkPayload:
			fmt.Fprintf(&b, "## Diff %s %s (%s, chunk %d/%d, score %.2f)\n\n",
				shortOID(payload.OID()), payload.Filepath(), payload.ChangeType(),
				payload.ChunkIndex()+1, payload.TotalChunks(), hit.Score())
			fmt.Fprintf(&b, "```diff\n%s\n```\n\n", r.snippet(ctx, payload.Chunk(), modelAvailable))
		default:
			fmt.Fprintf(&b, "## %s (score %.2f)\n\n", hit.ID(), hit.Score())
		}
	}
	return b.String()
}

// snippet bounds one content block for inclusion in a result.
func (r *Registry) snippet(ctx context.Context, content string, modelAvailable bool) string {
	limit := r.cfg.MaxSnippetLength()
	if len(content) <= limit {
		return content
	}
	if modelAvailable {
		summary, err := r.summarize(ctx, content)
		if err == nil {
			return "[summarized]\n" + summary
		}
		r.logger.Warn("snippet summarization failed, truncating", "error", err)
	}
	return truncate(content, limit)
}

// summarize asks the suggestion model to compress a long snippet.
func (r *Registry) summarize(ctx context.Context, content string) (string, error) {
	gen, err := r.generators.SuggestionGenerator(ctx)
	if err != nil {
		return "", err
	}
	return gen.GenerateText(ctx,
		"You summarize code for a developer. Preserve identifiers, signatures, and behavior; stay brief.",
		"Summarize the following content:\n\n"+content)
}

// sessionActivity renders the session's recent queries. The summary is
// model-generated when possible and elided entirely without a model.
func (r *Registry) sessionActivity(ctx context.Context, id string) string {
	recent, err := r.sessions.RecentQueries(id, recentQueriesShown)
	if err != nil || len(recent) == 0 {
		return ""
	}
	if !r.generators.SuggestionAvailable(ctx) {
		return ""
	}

	var activity strings.Builder
	for _, q := range recent {
		fmt.Fprintf(&activity, "- %q scored %.2f over %d results\n",
			q.Query(), q.RelevanceScore(), len(q.Results()))
	}

	summary, err := r.summarize(ctx, "Recent searches in this session:\n"+activity.String())
	if err != nil {
		r.logger.Warn("session activity summary failed", "error", err)
		return activity.String()
	}
	return summary
}

// recordQuery stores the retrieval on the session and refreshes the
// session's file context.
func (r *Registry) recordQuery(id string, result service.RetrievalResult) {
	labels := resultLabels(result.Results())
	record := session.NewQueryRecord(r.now(), result.RefinedQuery(), labels, result.RelevanceScore())
	if err := r.sessions.AddQuery(id, record); err != nil {
		r.logger.Warn("failed to record query", "session_id", id, "error", err)
		return
	}

	if files := resultFiles(result.Results()); len(files) > 0 {
		sessCtx, err := r.sessions.Context(id)
		if err != nil {
			return
		}
		if err := r.sessions.UpdateContext(id, sessCtx.WithFiles(files)); err != nil {
			r.logger.Warn("failed to update session files", "session_id", id, "error", err)
		}
	}
}

// updateSessionDiff records the latest surfaced diff on the session.
func (r *Registry) updateSessionDiff(id, diff string) {
	sessCtx, err := r.sessions.Context(id)
	if err != nil {
		return
	}
	if err := r.sessions.UpdateContext(id, sessCtx.WithDiff(diff)); err != nil {
		r.logger.Warn("failed to update session diff", "session_id", id, "error", err)
	}
}

// resultLabels renders one identifying label per hit for the session
// query record.
func resultLabels(results []point.ScoredPoint) []string {
	labels := make([]string, 0, len(results))
	for _, hit := range results {
		switch payload := hit.Payload().(type) {
		case point.FileChunkPayload:
			labels = append(labels, payload.Filepath())
		case point.CommitInfoPayload:
			labels = append(labels, "commit "+shortOID(payload.OID()))
		case point.DiffChunkPayload:
			labels = append(labels, fmt.Sprintf("diff %s %s", shortOID(payload.OID()), payload.Filepath()))
		default:
			labels = append(labels, hit.ID())
		}
	}
	return labels
}

// resultFiles returns the unique file paths among the hits, best first.
func resultFiles(results []point.ScoredPoint) []string {
	seen := make(map[string]struct{})
	var files []string
	for _, hit := range results {
		var path string
		switch payload := hit.Payload().(type) {
		case point.FileChunkPayload:
			path = payload.Filepath()
		case point.DiffChunkPayload:
			path = payload.Filepath()
		}
		if path == "" {
			continue
		}
		if _, ok := seen[path]; ok {
			continue
		}
		seen[path] = struct{}{}
		files = append(files, path)
	}
	return files
}

// shortOID abbreviates a commit OID for display.
func shortOID(oid string) string {
	if len(oid) > 8 {
		return oid[:8]
	}
	return oid
}
