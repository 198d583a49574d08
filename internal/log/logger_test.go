package log

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codecompass/codecompass/internal/config"
)

// decodeLine parses one JSON log line.
func decodeLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var data map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &data), "log line must be valid JSON: %s", line)
	return data
}

func TestNewLoggerFormats(t *testing.T) {
	t.Run("pretty", func(t *testing.T) {
		cfg := config.NewAppConfigWithOptions(
			config.WithLogLevel("INFO"),
			config.WithLogFormat(config.LogFormatPretty),
		)
		logger := NewLogger(cfg)
		require.NotNil(t, logger)
		assert.IsType(t, &TerminalHandler{}, logger.Handler())
	})

	t.Run("json", func(t *testing.T) {
		cfg := config.NewAppConfigWithOptions(
			config.WithLogLevel("DEBUG"),
			config.WithLogFormat(config.LogFormatJSON),
		)
		logger := NewLogger(cfg)
		require.NotNil(t, logger)
		require.NotNil(t, logger.Slog())
	})
}

func TestLoggerEmitsAllLevels(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, config.LogFormatJSON, "DEBUG")

	logger.Debug("scrolling stale chunks")
	logger.Info("indexing run started")
	logger.Warn("embedding retry")
	logger.Error("qdrant unreachable")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	for _, line := range lines {
		decodeLine(t, line)
	}
}

func TestLoggerLevelThreshold(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, config.LogFormatJSON, "WARN")

	logger.Debug("dropped")
	logger.Info("dropped")
	logger.Warn("kept")
	logger.Error("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 2)
}

func TestLoggerWith(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, config.LogFormatJSON, "INFO")

	logger.With("component", "retriever").Info("refinement round")

	data := decodeLine(t, strings.TrimSpace(buf.String()))
	assert.Equal(t, "retriever", data["component"])
}

func TestLoggerWithContext(t *testing.T) {
	t.Run("annotates session and request IDs", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(&buf, config.LogFormatJSON, "INFO")

		ctx := WithRequestID(WithSessionID(context.Background(), "session_1700000000_ab12"), "req-456")
		logger.InfoContext(ctx, "tool dispatched")

		data := decodeLine(t, strings.TrimSpace(buf.String()))
		assert.Equal(t, "session_1700000000_ab12", data["session_id"])
		assert.Equal(t, "req-456", data["request_id"])
	})

	t.Run("bare context adds nothing", func(t *testing.T) {
		var buf bytes.Buffer
		logger := NewLoggerWithWriter(&buf, config.LogFormatJSON, "INFO")

		logger.InfoContext(context.Background(), "tool dispatched")

		data := decodeLine(t, strings.TrimSpace(buf.String()))
		assert.NotContains(t, data, "session_id")
		assert.NotContains(t, data, "request_id")
	})
}

func TestContextAccessors(t *testing.T) {
	ctx := context.Background()

	assert.Empty(t, SessionID(ctx))
	assert.Empty(t, RequestID(ctx))

	ctx = WithSessionID(ctx, "session_42")
	ctx = WithRequestID(ctx, "req_7")

	assert.Equal(t, "session_42", SessionID(ctx))
	assert.Equal(t, "req_7", RequestID(ctx))
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{
		"DEBUG":   "DEBUG",
		"debug":   "DEBUG",
		"INFO":    "INFO",
		"WARN":    "WARN",
		"WARNING": "WARN",
		"error":   "ERROR",
		"bogus":   "INFO",
		"":        "INFO",
	}
	for input, want := range cases {
		assert.Equal(t, want, parseLevel(input).String(), "parseLevel(%q)", input)
	}
}

func TestConfigureInstallsDefault(t *testing.T) {
	cfg := config.NewAppConfigWithOptions(
		config.WithLogLevel("DEBUG"),
		config.WithLogFormat(config.LogFormatJSON),
	)

	logger := Configure(cfg)
	require.NotNil(t, logger)
	assert.Same(t, logger, Default())
}
