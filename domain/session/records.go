// Package session provides conversation session domain types.
package session

import (
	"maps"
	"time"
)

// QueryRecord is one retrieval performed within a session.
type QueryRecord struct {
	timestamp      time.Time
	query          string
	results        []string
	relevanceScore float64
}

// NewQueryRecord creates a new QueryRecord.
func NewQueryRecord(timestamp time.Time, query string, results []string, relevanceScore float64) QueryRecord {
	r := make([]string, len(results))
	copy(r, results)
	return QueryRecord{
		timestamp:      timestamp,
		query:          query,
		results:        r,
		relevanceScore: relevanceScore,
	}
}

// Timestamp returns when the query ran.
func (q QueryRecord) Timestamp() time.Time { return q.timestamp }

// Query returns the (possibly refined) query text.
func (q QueryRecord) Query() string { return q.query }

// Results returns the recorded result summaries.
func (q QueryRecord) Results() []string {
	result := make([]string, len(q.results))
	copy(result, q.results)
	return result
}

// RelevanceScore returns the average relevance of the results.
func (q QueryRecord) RelevanceScore() float64 { return q.relevanceScore }

// SuggestionRecord is one generated suggestion within a session.
type SuggestionRecord struct {
	timestamp   time.Time
	prompt      string
	suggestion  string
	feedback    string
	hasFeedback bool
}

// NewSuggestionRecord creates a new SuggestionRecord without feedback.
func NewSuggestionRecord(timestamp time.Time, prompt, suggestion string) SuggestionRecord {
	return SuggestionRecord{
		timestamp:  timestamp,
		prompt:     prompt,
		suggestion: suggestion,
	}
}

// Timestamp returns when the suggestion was generated.
func (s SuggestionRecord) Timestamp() time.Time { return s.timestamp }

// Prompt returns the prompt that produced the suggestion.
func (s SuggestionRecord) Prompt() string { return s.prompt }

// Suggestion returns the generated text.
func (s SuggestionRecord) Suggestion() string { return s.suggestion }

// Feedback returns the user feedback, if any.
func (s SuggestionRecord) Feedback() (string, bool) { return s.feedback, s.hasFeedback }

// WithFeedback returns a copy carrying user feedback.
func (s SuggestionRecord) WithFeedback(feedback string) SuggestionRecord {
	s.feedback = feedback
	s.hasFeedback = true
	return s
}

// AgentStep is one tool dispatch recorded during an agent run.
type AgentStep struct {
	tool      string
	input     map[string]any
	output    string
	reasoning string
}

// NewAgentStep creates a new AgentStep.
func NewAgentStep(tool string, input map[string]any, output, reasoning string) AgentStep {
	return AgentStep{
		tool:      tool,
		input:     maps.Clone(input),
		output:    output,
		reasoning: reasoning,
	}
}

// Tool returns the dispatched tool name.
func (a AgentStep) Tool() string { return a.tool }

// Input returns the tool parameters.
func (a AgentStep) Input() map[string]any { return maps.Clone(a.input) }

// Output returns the tool result text.
func (a AgentStep) Output() string { return a.output }

// Reasoning returns the model's stated reasoning for the step.
func (a AgentStep) Reasoning() string { return a.reasoning }

// Context is the shared working context of a session.
type Context struct {
	repoPath  string
	lastFiles []string
	lastDiff  string
}

// NewContext creates a new Context for the given repository.
func NewContext(repoPath string) Context {
	return Context{repoPath: repoPath}
}

// RepoPath returns the repository path the session works against.
func (c Context) RepoPath() string { return c.repoPath }

// LastFiles returns the files most recently surfaced to the client.
func (c Context) LastFiles() []string {
	result := make([]string, len(c.lastFiles))
	copy(result, c.lastFiles)
	return result
}

// LastDiff returns the diff most recently surfaced to the client.
func (c Context) LastDiff() string { return c.lastDiff }

// WithFiles returns a copy with the given files recorded.
func (c Context) WithFiles(files []string) Context {
	cp := make([]string, len(files))
	copy(cp, files)
	c.lastFiles = cp
	return c
}

// WithDiff returns a copy with the given diff recorded.
func (c Context) WithDiff(diff string) Context {
	c.lastDiff = diff
	return c
}
