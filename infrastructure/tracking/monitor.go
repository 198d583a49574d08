// Package tracking publishes indexing run progress to subscribers.
package tracking

import (
	"context"
	"log/slog"
	"sync"

	"github.com/codecompass/codecompass/domain/indexing"
)

// Monitor owns the status of the indexing run and propagates state
// changes to registered reporters. One Monitor backs the whole process:
// the pipeline writes through it while the HTTP status endpoint and the
// MCP tools read from it.
type Monitor struct {
	status      indexing.Status
	running     bool
	subscribers []Reporter
	logger      *slog.Logger
	mu          sync.RWMutex
}

// NewMonitor creates a Monitor in the idle state.
func NewMonitor(logger *slog.Logger) *Monitor {
	return &Monitor{
		status:      indexing.NewStatus(),
		subscribers: make([]Reporter, 0),
		logger:      logger,
	}
}

// Status returns a snapshot of the current run.
func (m *Monitor) Status() indexing.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Running reports whether an indexing run currently holds the monitor.
func (m *Monitor) Running() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Subscribe adds a reporter to receive status change notifications.
func (m *Monitor) Subscribe(reporter Reporter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscribers = append(m.subscribers, reporter)
}

// TryBegin claims the monitor for a new indexing run and resets the
// status to a fresh initializing snapshot. It fails with
// ErrIndexingInProgress when another run already holds the monitor.
func (m *Monitor) TryBegin(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return indexing.ErrIndexingInProgress
	}
	m.running = true
	m.status = indexing.NewStatus().WithState(indexing.StateInitializing, "Starting indexing run")
	status := m.status
	m.mu.Unlock()

	m.notifySubscribers(ctx, status)
	return nil
}

// Transition moves the run into the given phase. Out-of-order
// transitions are logged and dropped so a late phase update cannot
// rewind the run.
func (m *Monitor) Transition(ctx context.Context, state indexing.State, message string) {
	m.mu.Lock()
	if !m.status.State().CanTransition(state) {
		current := m.status.State()
		m.mu.Unlock()
		m.logger.Warn("ignoring out-of-order indexing transition",
			slog.String("from", string(current)),
			slog.String("to", string(state)),
		)
		return
	}
	m.status = m.status.WithState(state, message)
	if state.IsTerminal() {
		m.running = false
	}
	status := m.status
	m.mu.Unlock()

	m.notifySubscribers(ctx, status)
}

// SetProgress records overall run progress as a percentage.
func (m *Monitor) SetProgress(ctx context.Context, percent int) {
	m.update(ctx, func(s indexing.Status) indexing.Status {
		return s.WithProgress(percent)
	})
}

// FileProgress records per-file counters while file content is indexed.
func (m *Monitor) FileProgress(ctx context.Context, path string, indexed, total int) {
	m.update(ctx, func(s indexing.Status) indexing.Status {
		return s.WithCurrentFile(path).WithFileCounts(indexed, total)
	})
}

// CommitProgress records per-commit counters while history is indexed.
func (m *Monitor) CommitProgress(ctx context.Context, oid string, indexed, total int) {
	m.update(ctx, func(s indexing.Status) indexing.Status {
		return s.WithCurrentCommit(oid).WithCommitCounts(indexed, total)
	})
}

// Complete marks the run completed and releases the monitor for the
// next trigger.
func (m *Monitor) Complete(ctx context.Context, message string) {
	m.mu.Lock()
	m.status = m.status.WithState(indexing.StateCompleted, message).WithProgress(100)
	m.running = false
	status := m.status
	m.mu.Unlock()

	m.notifySubscribers(ctx, status)
}

// Fail marks the run failed, records the error details, and releases
// the monitor.
func (m *Monitor) Fail(ctx context.Context, message, details string) {
	m.mu.Lock()
	m.status = m.status.WithError(message, details)
	m.running = false
	status := m.status
	m.mu.Unlock()

	m.notifySubscribers(ctx, status)
}

// update applies a non-transition change to the current snapshot and
// notifies subscribers.
func (m *Monitor) update(ctx context.Context, apply func(indexing.Status) indexing.Status) {
	m.mu.Lock()
	m.status = apply(m.status)
	status := m.status
	m.mu.Unlock()

	m.notifySubscribers(ctx, status)
}

// notifySubscribers sends the status update to all registered reporters.
func (m *Monitor) notifySubscribers(ctx context.Context, status indexing.Status) {
	m.mu.RLock()
	subscribers := make([]Reporter, len(m.subscribers))
	copy(subscribers, m.subscribers)
	m.mu.RUnlock()

	for _, subscriber := range subscribers {
		if err := subscriber.OnChange(ctx, status); err != nil {
			m.logger.Error("failed to notify subscriber",
				slog.String("error", err.Error()),
				slog.String("state", string(status.State())),
			)
			// Continue notifying other subscribers even if one fails
		}
	}
}
