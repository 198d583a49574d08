package tracking

import (
	"context"
	"log/slog"

	"github.com/codecompass/codecompass/domain/indexing"
)

// LoggingReporter implements Reporter by logging status changes.
type LoggingReporter struct {
	logger *slog.Logger
}

// NewLoggingReporter creates a new LoggingReporter.
func NewLoggingReporter(logger *slog.Logger) *LoggingReporter {
	return &LoggingReporter{
		logger: logger,
	}
}

// OnChange logs the indexing status change.
func (r *LoggingReporter) OnChange(_ context.Context, status indexing.Status) error {
	state := status.State()

	if state == indexing.StateFailed {
		r.logger.Error("indexing "+status.Message(),
			slog.String("state", string(state)),
			slog.Int("progress", status.Progress()),
			slog.String("error", status.ErrorDetails()),
		)
		return nil
	}

	r.logger.Info("indexing "+status.Message(),
		slog.String("state", string(state)),
		slog.Int("progress", status.Progress()),
	)

	return nil
}
