package session

import (
	"errors"
	"sort"
	"time"
)

// ErrNoSuggestion indicates feedback arrived before any suggestion.
var ErrNoSuggestion = errors.New("session has no suggestion to attach feedback to")

// Session accumulates the queries, suggestions, and agent activity of
// one conversation. It is not safe for concurrent use; the store that
// owns it serializes access.
type Session struct {
	id          string
	createdAt   time.Time
	lastUpdated time.Time
	context     Context
	queries     []QueryRecord
	suggestions []SuggestionRecord
	agentSteps  []AgentStep
}

// NewSession creates a Session rooted at the given repository path.
func NewSession(id, repoPath string, now time.Time) *Session {
	return &Session{
		id:          id,
		createdAt:   now,
		lastUpdated: now,
		context:     NewContext(repoPath),
	}
}

// ID returns the session ID.
func (s *Session) ID() string { return s.id }

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// LastUpdated returns when the session last changed.
func (s *Session) LastUpdated() time.Time { return s.lastUpdated }

// Context returns the session context snapshot.
func (s *Session) Context() Context { return s.context }

// Queries returns all recorded queries, oldest first.
func (s *Session) Queries() []QueryRecord {
	result := make([]QueryRecord, len(s.queries))
	copy(result, s.queries)
	return result
}

// Suggestions returns all recorded suggestions, oldest first.
func (s *Session) Suggestions() []SuggestionRecord {
	result := make([]SuggestionRecord, len(s.suggestions))
	copy(result, s.suggestions)
	return result
}

// AgentSteps returns all recorded agent steps, oldest first.
func (s *Session) AgentSteps() []AgentStep {
	result := make([]AgentStep, len(s.agentSteps))
	copy(result, s.agentSteps)
	return result
}

// AddQuery records a retrieval.
func (s *Session) AddQuery(record QueryRecord) {
	s.queries = append(s.queries, record)
	s.touch(record.Timestamp())
}

// AddSuggestion records a generated suggestion.
func (s *Session) AddSuggestion(record SuggestionRecord) {
	s.suggestions = append(s.suggestions, record)
	s.touch(record.Timestamp())
}

// AttachFeedback attaches feedback to the most recent suggestion.
func (s *Session) AttachFeedback(feedback string, now time.Time) error {
	if len(s.suggestions) == 0 {
		return ErrNoSuggestion
	}
	last := len(s.suggestions) - 1
	s.suggestions[last] = s.suggestions[last].WithFeedback(feedback)
	s.touch(now)
	return nil
}

// SetContext replaces the session context.
func (s *Session) SetContext(ctx Context, now time.Time) {
	s.context = ctx
	s.touch(now)
}

// RecordAgentSteps appends the steps of one agent run.
func (s *Session) RecordAgentSteps(steps []AgentStep, now time.Time) {
	s.agentSteps = append(s.agentSteps, steps...)
	s.touch(now)
}

// RecentQueries returns the n most recent queries, newest first.
func (s *Session) RecentQueries(n int) []QueryRecord {
	if n <= 0 || len(s.queries) == 0 {
		return nil
	}
	if n > len(s.queries) {
		n = len(s.queries)
	}
	result := make([]QueryRecord, 0, n)
	for i := len(s.queries) - 1; i >= len(s.queries)-n; i-- {
		result = append(result, s.queries[i])
	}
	return result
}

// RelevantResults returns the flattened results of the n most relevant
// queries, best first.
func (s *Session) RelevantResults(n int) []string {
	if n <= 0 || len(s.queries) == 0 {
		return nil
	}
	sorted := s.Queries()
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].RelevanceScore() > sorted[j].RelevanceScore()
	})
	if n > len(sorted) {
		n = len(sorted)
	}
	var result []string
	for _, q := range sorted[:n] {
		result = append(result, q.Results()...)
	}
	return result
}

// AverageRelevanceScore returns the mean relevance over all queries,
// or 0 when none were recorded.
func (s *Session) AverageRelevanceScore() float64 {
	if len(s.queries) == 0 {
		return 0
	}
	var sum float64
	for _, q := range s.queries {
		sum += q.RelevanceScore()
	}
	return sum / float64(len(s.queries))
}

func (s *Session) touch(now time.Time) {
	if now.After(s.lastUpdated) {
		s.lastUpdated = now
	}
}
