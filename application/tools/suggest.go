package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/codecompass/codecompass/application/service"
	"github.com/codecompass/codecompass/domain/session"
)

// generateSuggestion handles generate_suggestion: retrieval-augmented
// generation grounded in the best-matching snippets, honoring feedback
// left on the session's previous suggestion.
func (r *Registry) generateSuggestion(ctx context.Context, args Args) (string, error) {
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

	gen, err := r.generators.SuggestionGenerator(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve suggestion model: %w", err)
	}

	prompt := r.suggestionPrompt(id, query, result)
	suggestion, err := gen.GenerateText(ctx,
		"You are CodeCompass, a coding assistant for the repository at "+r.repoPath+
			". Ground every suggestion in the provided code context and say so when the context is insufficient.",
		prompt)
	if err != nil {
		return "", fmt.Errorf("generate suggestion: %w", err)
	}

	record := session.NewSuggestionRecord(r.now(), query, suggestion)
	if err := r.sessions.AddSuggestion(id, record); err != nil {
		r.logger.Warn("failed to record suggestion", "session_id", id, "error", err)
	}

	var b strings.Builder
	b.WriteString("# Code Suggestion\n\n")
	b.WriteString(strings.TrimSpace(suggestion))
	b.WriteString("\n\nYou can refine this suggestion by replying with feedback.\n")
	return withSession(b.String(), id), nil
}

// analyzeProblem handles analyze_code_problem: an analysis pass over
// the retrieved context followed by an implementation-plan pass fed by
// the analysis.
func (r *Registry) analyzeProblem(ctx context.Context, args Args) (string, error) {
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

	gen, err := r.generators.SuggestionGenerator(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve suggestion model: %w", err)
	}

	codeContext := r.retrievedContext(result)

	analysis, err := gen.GenerateText(ctx,
		"You are a senior engineer diagnosing a reported problem. Identify the likely root cause and the code involved.",
		fmt.Sprintf("Problem:\n%s\n\nRelevant code:\n%s", query, codeContext))
	if err != nil {
		return "", fmt.Errorf("analysis pass: %w", err)
	}

	plan, err := gen.GenerateText(ctx,
		"You are a senior engineer planning a fix. Produce concrete, ordered implementation steps.",
		fmt.Sprintf("Problem:\n%s\n\nAnalysis:\n%s\n\nProduce a step-by-step implementation plan.", query, analysis))
	if err != nil {
		return "", fmt.Errorf("planning pass: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Problem Analysis\n\n")
	b.WriteString(strings.TrimSpace(analysis))
	b.WriteString("\n\n# Implementation Plan\n\n")
	b.WriteString(strings.TrimSpace(plan))
	b.WriteString("\n")

	record := session.NewSuggestionRecord(r.now(), query, b.String())
	if err := r.sessions.AddSuggestion(id, record); err != nil {
		r.logger.Warn("failed to record analysis", "session_id", id, "error", err)
	}

	return withSession(b.String(), id), nil
}

// suggestionPrompt assembles the user prompt for generate_suggestion:
// the request, the retrieved code, session history, and any feedback on
// the previous suggestion.
func (r *Registry) suggestionPrompt(id, query string, result service.RetrievalResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Request:\n%s\n\n", query)
	fmt.Fprintf(&b, "Relevant code from the repository:\n%s\n", r.retrievedContext(result))

	if previous, ok, err := r.lastFeedback(id); err == nil && ok {
		fmt.Fprintf(&b, "\nThe user left feedback on the previous suggestion; honor it:\n%s\n", previous)
	}

	if avg, err := r.sessions.AverageRelevanceScore(id); err == nil && avg > 0 {
		fmt.Fprintf(&b, "\nAverage retrieval relevance this session: %.2f\n", avg)
	}
	return b.String()
}

// retrievedContext formats the top hits as prompt context, bounded by
// the configured file and snippet caps.
func (r *Registry) retrievedContext(result service.RetrievalResult) string {
	hits := result.Results()
	if len(hits) > r.cfg.MaxFilesNoSummary() {
		hits = hits[:r.cfg.MaxFilesNoSummary()]
	}
	if len(hits) == 0 {
		return "(no indexed code matched)"
	}

	labels := resultLabels(hits)
	var b strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&b, "--- %s ---\n", labels[i])
		if payload := hit.Payload(); payload != nil {
			b.WriteString(truncate(payload.EmbeddingText(), r.cfg.MaxSnippetLength()))
		}
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// lastFeedback returns the feedback on the session's most recent
// suggestion, if any.
func (r *Registry) lastFeedback(id string) (string, bool, error) {
	record, ok, err := r.sessions.LastSuggestion(id)
	if err != nil || !ok {
		return "", false, err
	}
	feedback, has := record.Feedback()
	return feedback, has, nil
}
