// Package log provides structured logging with session correlation.
//
// All output goes to stderr: when the server speaks MCP over stdio,
// stdout carries only JSON-RPC frames.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/codecompass/codecompass/internal/config"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// Context keys carried into log attributes by WithContext.
const (
	SessionIDKey ContextKey = "session_id"
	RequestIDKey ContextKey = "request_id"
)

// Logger wraps slog.Logger with session-aware convenience methods.
type Logger struct {
	handler slog.Handler
	logger  *slog.Logger
}

// NewLogger creates a Logger from the application configuration. Output
// goes to stderr so the stdio MCP transport keeps stdout to itself.
func NewLogger(cfg *config.AppConfig) *Logger {
	return NewLoggerWithWriter(os.Stderr, cfg.LogFormat(), cfg.LogLevel())
}

// NewLoggerWithWriter creates a Logger that writes to w.
func NewLoggerWithWriter(w io.Writer, format config.LogFormat, level string) *Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	if format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = newTerminalHandler(w, opts)
	}
	return &Logger{handler: handler, logger: slog.New(handler)}
}

func parseLevel(level string) slog.Level {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Handler returns the underlying slog.Handler.
func (l *Logger) Handler() slog.Handler { return l.handler }

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger { return l.logger }

// With returns a new Logger with additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{handler: l.handler, logger: l.logger.With(args...)}
}

// WithContext returns a logger annotated with the session and request
// IDs found in ctx, if any.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	attrs := make([]any, 0, 4)
	if id := SessionID(ctx); id != "" {
		attrs = append(attrs, string(SessionIDKey), id)
	}
	if id := RequestID(ctx); id != "" {
		attrs = append(attrs, string(RequestIDKey), id)
	}
	if len(attrs) == 0 {
		return l
	}
	return l.With(attrs...)
}

func (l *Logger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// DebugContext logs at debug level with context correlation attributes.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).logger.Log(ctx, slog.LevelDebug, msg, args...)
}

// InfoContext logs at info level with context correlation attributes.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).logger.Log(ctx, slog.LevelInfo, msg, args...)
}

// WarnContext logs at warn level with context correlation attributes.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).logger.Log(ctx, slog.LevelWarn, msg, args...)
}

// ErrorContext logs at error level with context correlation attributes.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).logger.Log(ctx, slog.LevelError, msg, args...)
}

// WithSessionID adds a session ID to the context.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, SessionIDKey, id)
}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

// SessionID extracts the session ID from context, or "".
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(SessionIDKey).(string)
	return id
}

// RequestID extracts the request ID from context, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}

// SetDefault installs this logger as the global slog default.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.logger)
}

var defaultLogger = func() *Logger {
	h := newTerminalHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	return &Logger{handler: h, logger: slog.New(h)}
}()

// Default returns the package-level default logger.
func Default() *Logger {
	return defaultLogger
}

// SetDefaultLogger replaces the package default and the slog default.
func SetDefaultLogger(l *Logger) {
	defaultLogger = l
	l.SetDefault()
}

// Configure builds a logger from cfg and installs it as the default.
func Configure(cfg *config.AppConfig) *Logger {
	l := NewLogger(cfg)
	SetDefaultLogger(l)
	return l
}
