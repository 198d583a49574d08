// Package service provides application layer services that orchestrate domain operations.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"sync/atomic"

	"github.com/codecompass/codecompass/domain/point"
	"github.com/codecompass/codecompass/domain/service"
	"github.com/codecompass/codecompass/infrastructure/chunking"
	"github.com/codecompass/codecompass/internal/config"
)

// DefaultRelevanceThreshold is the average score at which refinement
// stops early.
const DefaultRelevanceThreshold = 0.7

// Score bands steering the refinement strategy.
const (
	broadenBelow = 0.3
	focusBelow   = 0.7
)

// RetrievalOption configures a refinement search.
type RetrievalOption func(*retrievalConfig)

// retrievalConfig holds retrieval parameters.
type retrievalConfig struct {
	files              []string
	limit              int
	maxRefinements     int
	relevanceThreshold float64
}

// newRetrievalConfig creates a retrievalConfig with defaults.
func newRetrievalConfig(limit, maxRefinements int) *retrievalConfig {
	if limit <= 0 {
		limit = config.DefaultSearchLimit
	}
	if maxRefinements < 0 {
		maxRefinements = config.DefaultMaxRefinements
	}
	return &retrievalConfig{
		limit:              limit,
		maxRefinements:     maxRefinements,
		relevanceThreshold: DefaultRelevanceThreshold,
	}
}

// WithFiles restricts results to the given file paths.
func WithFiles(paths ...string) RetrievalOption {
	return func(c *retrievalConfig) {
		c.files = paths
	}
}

// WithLimit sets the maximum number of results per search round.
func WithLimit(n int) RetrievalOption {
	return func(c *retrievalConfig) {
		if n > 0 {
			c.limit = n
		}
	}
}

// WithMaxRefinements caps the number of refinement rounds.
func WithMaxRefinements(n int) RetrievalOption {
	return func(c *retrievalConfig) {
		if n >= 0 {
			c.maxRefinements = n
		}
	}
}

// WithRelevanceThreshold sets the average score at which refinement
// stops early.
func WithRelevanceThreshold(t float64) RetrievalOption {
	return func(c *retrievalConfig) {
		if t > 0 && t <= 1 {
			c.relevanceThreshold = t
		}
	}
}

// RetrievalResult is the outcome of a refinement search.
type RetrievalResult struct {
	results        []point.ScoredPoint
	refinedQuery   string
	relevanceScore float64
	refinements    int
}

// NewRetrievalResult creates a RetrievalResult.
func NewRetrievalResult(results []point.ScoredPoint, refinedQuery string, relevanceScore float64, refinements int) RetrievalResult {
	r := make([]point.ScoredPoint, len(results))
	copy(r, results)
	return RetrievalResult{
		results:        r,
		refinedQuery:   refinedQuery,
		relevanceScore: relevanceScore,
		refinements:    refinements,
	}
}

// Results returns the best-scoring result set, best first.
func (r RetrievalResult) Results() []point.ScoredPoint {
	result := make([]point.ScoredPoint, len(r.results))
	copy(result, r.results)
	return result
}

// RefinedQuery returns the query text of the final round.
func (r RetrievalResult) RefinedQuery() string { return r.refinedQuery }

// RelevanceScore returns the best average score seen across rounds.
func (r RetrievalResult) RelevanceScore() float64 { return r.relevanceScore }

// Refinements returns how many times the query was rewritten.
func (r RetrievalResult) Refinements() int { return r.refinements }

// Count returns the number of results.
func (r RetrievalResult) Count() int { return len(r.results) }

// Retriever performs semantic search with bounded query refinement.
// Low-relevance rounds broaden the query, mid-relevance rounds focus it
// with keywords from the best hits, near-threshold rounds tweak it.
type Retriever struct {
	store          service.VectorStore
	embedder       service.Embedder
	searchLimit    int
	maxRefinements int
	closed         *atomic.Bool
	logger         *slog.Logger
}

// NewRetriever creates a new Retriever.
func NewRetriever(
	store service.VectorStore,
	embedder service.Embedder,
	searchLimit int,
	maxRefinements int,
	closed *atomic.Bool,
	logger *slog.Logger,
) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if searchLimit <= 0 {
		searchLimit = config.DefaultSearchLimit
	}
	if maxRefinements < 0 {
		maxRefinements = config.DefaultMaxRefinements
	}
	return &Retriever{
		store:          store,
		embedder:       embedder,
		searchLimit:    searchLimit,
		maxRefinements: maxRefinements,
		closed:         closed,
		logger:         logger,
	}
}

// SearchWithRefinement runs up to maxRefinements+1 search rounds,
// rewriting the query between rounds until the average score clears the
// relevance threshold or the query reaches a fixpoint. It returns the
// best round's results together with the final query text.
func (r *Retriever) SearchWithRefinement(ctx context.Context, query string, opts ...RetrievalOption) (RetrievalResult, error) {
	if r.closed != nil && r.closed.Load() {
		return RetrievalResult{}, ErrClientClosed
	}

	cfg := newRetrievalConfig(r.searchLimit, r.maxRefinements)
	for _, opt := range opts {
		opt(cfg)
	}

	filter := point.NewFilter()
	if len(cfg.files) > 0 {
		filter = filter.WithFilepaths(cfg.files...)
	}

	current := query
	var best []point.ScoredPoint
	bestScore := 0.0
	refinements := 0

	for i := 0; i <= cfg.maxRefinements; i++ {
		vector, err := r.embedder.GenerateEmbedding(ctx, current)
		if err != nil {
			return RetrievalResult{}, fmt.Errorf("embed query: %w", err)
		}

		results, err := r.store.Search(ctx, vector, cfg.limit, filter)
		if err != nil {
			return RetrievalResult{}, fmt.Errorf("vector search: %w", err)
		}

		avg := averageScore(results)
		if avg > bestScore || best == nil {
			best = results
			bestScore = avg
		}

		r.logger.Debug("search round",
			"round", i,
			"query", current,
			"results", len(results),
			"avg_score", avg)

		if avg >= cfg.relevanceThreshold || i == cfg.maxRefinements {
			break
		}

		next := r.refine(current, results, avg)
		if next == current && len(results) > 0 {
			// Fixpoint: refinement has nothing left to change.
			break
		}
		if next != current {
			refinements++
		}
		current = next
	}

	return NewRetrievalResult(best, current, bestScore, refinements), nil
}

// refine rewrites the query based on how relevant the last round was.
func (r *Retriever) refine(query string, results []point.ScoredPoint, avg float64) string {
	switch {
	case avg < broadenBelow || len(results) == 0:
		return broadenQuery(query)
	case avg < focusBelow:
		return focusQuery(query, results)
	default:
		return tweakQuery(query, results)
	}
}

// specificityTerms are dropped when broadening a query.
var specificityTerms = map[string]struct{}{
	"specific":       {},
	"specifically":   {},
	"exact":          {},
	"exactly":        {},
	"precise":        {},
	"precisely":      {},
	"particular":     {},
	"detailed":       {},
	"implementation": {},
	"only":           {},
	"just":           {},
}

// broadenQuery strips specificity from a query that matched poorly:
// quotes and brackets go, file-extension tokens go, narrowing words go.
// If little remains, generic code terms are appended.
func broadenQuery(query string) string {
	cleaned := strings.Map(func(ch rune) rune {
		switch ch {
		case '"', '\'', '`', '(', ')', '[', ']', '{', '}':
			return -1
		}
		return ch
	}, query)

	var kept []string
	for _, token := range strings.Fields(cleaned) {
		if isExtensionToken(token) {
			continue
		}
		if _, ok := specificityTerms[strings.ToLower(token)]; ok {
			continue
		}
		kept = append(kept, token)
	}

	if len(kept) < 2 {
		kept = append(kept, "code", "logic")
	}
	return strings.Join(kept, " ")
}

// focusQuery narrows a middling query by appending the two strongest
// unused keywords from the top results' content.
func focusQuery(query string, results []point.ScoredPoint) string {
	top := results
	if len(top) > 3 {
		top = top[:3]
	}
	var content strings.Builder
	for _, res := range top {
		if p := res.Payload(); p != nil {
			content.WriteString(p.EmbeddingText())
			content.WriteString(" ")
		}
	}

	used := make(map[string]struct{})
	for _, token := range strings.Fields(strings.ToLower(query)) {
		used[token] = struct{}{}
	}

	added := 0
	result := query
	for _, keyword := range ExtractKeywords(content.String()) {
		if _, ok := used[keyword]; ok {
			continue
		}
		result += " " + keyword
		added++
		if added == 2 {
			break
		}
	}
	return result
}

// tweakQuery nudges a nearly-relevant query with the file type or
// top-level directory of the best hit.
func tweakQuery(query string, results []point.ScoredPoint) string {
	if len(results) == 0 {
		return query
	}
	filepath := payloadFilepath(results[0].Payload())
	if filepath == "" {
		return query
	}

	lower := strings.ToLower(query)
	if ext := strings.TrimPrefix(path.Ext(filepath), "."); ext != "" {
		if !strings.Contains(lower, strings.ToLower(ext)) {
			return query + " " + ext
		}
	}
	if dir, _, ok := strings.Cut(filepath, "/"); ok && dir != "" {
		if !strings.Contains(lower, strings.ToLower(dir)) {
			return query + " " + dir
		}
	}
	return query
}

// payloadFilepath returns the file path carried by a payload, or ""
// when the payload has none.
func payloadFilepath(p point.Payload) string {
	switch payload := p.(type) {
	case point.FileChunkPayload:
		return payload.Filepath()
	case point.DiffChunkPayload:
		return payload.Filepath()
	default:
		return ""
	}
}

// isExtensionToken reports whether a token names a file or a bare
// source extension, e.g. "main.go" or ".ts".
func isExtensionToken(token string) bool {
	idx := strings.LastIndexByte(token, '.')
	if idx < 0 {
		return false
	}
	ext := token[idx+1:]
	if len(ext) == 0 || len(ext) > 5 {
		return false
	}
	for _, ch := range ext {
		if (ch < 'a' || ch > 'z') && (ch < '0' || ch > '9') {
			return false
		}
	}
	return true
}

// keywordStopwords are skipped during keyword extraction.
var keywordStopwords = map[string]struct{}{
	"this": {}, "that": {}, "with": {}, "from": {}, "have": {},
	"what": {}, "when": {}, "where": {}, "which": {}, "will": {},
	"would": {}, "there": {}, "their": {}, "them": {}, "then": {},
	"these": {}, "those": {}, "into": {}, "over": {}, "also": {},
	"func": {}, "return": {}, "const": {}, "import": {}, "package": {},
	"true": {}, "false": {}, "null": {}, "void": {}, "self": {},
}

// ExtractKeywords pulls candidate keywords out of free text: preprocess,
// split on whitespace, drop short words and stopwords, deduplicate
// preserving first occurrence.
func ExtractKeywords(text string) []string {
	var keywords []string
	seen := make(map[string]struct{})
	for _, token := range strings.Fields(chunking.Preprocess(text)) {
		word := strings.ToLower(strings.Trim(token, ".,;:!?\"'`()[]{}<>"))
		if len(word) < 4 {
			continue
		}
		if _, ok := keywordStopwords[word]; ok {
			continue
		}
		if _, ok := seen[word]; ok {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}
	return keywords
}

// averageScore returns the mean score of the results, or 0 when empty.
func averageScore(results []point.ScoredPoint) float64 {
	if len(results) == 0 {
		return 0
	}
	var sum float64
	for _, r := range results {
		sum += r.Score()
	}
	return sum / float64(len(results))
}
