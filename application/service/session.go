package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/codecompass/codecompass/domain/session"
	"github.com/google/uuid"
)

// SessionStore keeps conversation sessions in memory. Mutations on a
// session are serialized by the store; lookups run concurrently.
type SessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*session.Session
	logger   *slog.Logger
	now      func() time.Time
}

// NewSessionStore creates an empty SessionStore.
func NewSessionStore(logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionStore{
		sessions: make(map[string]*session.Session),
		logger:   logger,
		now:      time.Now,
	}
}

// GetOrCreate returns the ID of the session with the given ID, creating
// it when absent. A blank id creates a fresh session. Creation requires
// repoPath.
func (s *SessionStore) GetOrCreate(id, repoPath string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if _, ok := s.sessions[id]; ok {
			return id, nil
		}
	}
	if repoPath == "" {
		return "", ErrRepoPathRequired
	}

	now := s.now()
	if id == "" {
		id = newSessionID(now)
	}
	s.sessions[id] = session.NewSession(id, repoPath, now)
	s.logger.Debug("session created", "session_id", id, "repo_path", repoPath)
	return id, nil
}

// AddQuery records a retrieval against the session.
func (s *SessionStore) AddQuery(id string, record session.QueryRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.AddQuery(record)
	return nil
}

// AddSuggestion records a generated suggestion against the session.
func (s *SessionStore) AddSuggestion(id string, record session.SuggestionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.AddSuggestion(record)
	return nil
}

// AddFeedback attaches feedback to the session's most recent suggestion.
func (s *SessionStore) AddFeedback(id, feedback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.AttachFeedback(feedback, s.now())
}

// ProcessFeedback implements service.FeedbackProcessor on top of
// AddFeedback.
func (s *SessionStore) ProcessFeedback(_ context.Context, sessionID, feedback string) error {
	return s.AddFeedback(sessionID, feedback)
}

// UpdateContext replaces the session's working context.
func (s *SessionStore) UpdateContext(id string, ctx session.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.SetContext(ctx, s.now())
	return nil
}

// RecordAgentSteps appends the steps of one agent run to the session.
func (s *SessionStore) RecordAgentSteps(id string, steps []session.AgentStep) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess.RecordAgentSteps(steps, s.now())
	return nil
}

// LastSuggestion returns the session's most recent suggestion. The
// second return is false when the session has none yet.
func (s *SessionStore) LastSuggestion(id string) (session.SuggestionRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return session.SuggestionRecord{}, false, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	suggestions := sess.Suggestions()
	if len(suggestions) == 0 {
		return session.SuggestionRecord{}, false, nil
	}
	return suggestions[len(suggestions)-1], true, nil
}

// Context returns the session's working context.
func (s *SessionStore) Context(id string) (session.Context, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return session.Context{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.Context(), nil
}

// RecentQueries returns the session's n most recent queries, newest
// first.
func (s *SessionStore) RecentQueries(id string, n int) ([]session.QueryRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.RecentQueries(n), nil
}

// RelevantResults returns the flattened results of the session's n most
// relevant queries, best first.
func (s *SessionStore) RelevantResults(id string, n int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.RelevantResults(n), nil
}

// AverageRelevanceScore returns the mean relevance over the session's
// queries, or 0 when none were recorded.
func (s *SessionStore) AverageRelevanceScore(id string) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.AverageRelevanceScore(), nil
}

// Count returns the number of live sessions.
func (s *SessionStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// newSessionID builds a session ID from the creation time and a random
// suffix.
func newSessionID(now time.Time) string {
	return fmt.Sprintf("session_%d_%s", now.UnixMilli(), uuid.NewString()[:8])
}
