package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTerminalHandlerRendersRecord(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	ts := time.Date(2026, 3, 2, 9, 15, 30, 42000000, time.UTC)
	r := slog.NewRecord(ts, slog.LevelInfo, "indexing started", 0)
	r.AddAttrs(slog.String("repo", "/src/app"), slog.Int("files", 128))
	require.NoError(t, h.Handle(context.Background(), r))

	out := buf.String()
	assert.Contains(t, out, "09:15:30.042")
	assert.Contains(t, out, "INF")
	assert.Contains(t, out, "indexing started")
	assert.Contains(t, out, "repo=")
	assert.Contains(t, out, "/src/app")
	assert.Contains(t, out, "files=")
	assert.Contains(t, out, "128")
	assert.True(t, strings.HasSuffix(out, "\n"), "record must end with a newline")
}

func TestTerminalHandlerLevelLabels(t *testing.T) {
	cases := []struct {
		level slog.Level
		label string
		color string
	}{
		{slog.LevelDebug, "DBG", ansiCyan},
		{slog.LevelInfo, "INF", ansiGreen},
		{slog.LevelWarn, "WRN", ansiYellow},
		{slog.LevelError, "ERR", ansiRed},
	}

	for _, tc := range cases {
		t.Run(tc.label, func(t *testing.T) {
			var buf bytes.Buffer
			h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

			r := slog.NewRecord(time.Now(), tc.level, "chunk embedded", 0)
			require.NoError(t, h.Handle(context.Background(), r))

			out := buf.String()
			assert.Contains(t, out, tc.label)
			assert.Contains(t, out, tc.color)
			assert.Contains(t, out, ansiReset)
		})
	}
}

func TestTerminalHandlerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	logger.Debug("scrolling collection")
	logger.Info("batch upserted")
	logger.Warn("retrying upsert")
	logger.Error("upsert failed")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, "only WARN and ERROR pass a WARN threshold")
	assert.Contains(t, lines[0], "retrying upsert")
	assert.Contains(t, lines[1], "upsert failed")
}

func TestTerminalHandlerEnabled(t *testing.T) {
	h := newTerminalHandler(&bytes.Buffer{}, &slog.HandlerOptions{Level: slog.LevelWarn})

	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
	assert.False(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, h.Enabled(context.Background(), slog.LevelWarn))
	assert.True(t, h.Enabled(context.Background(), slog.LevelError))
}

func TestTerminalHandlerNilOptionsDefaultToInfo(t *testing.T) {
	h := newTerminalHandler(&bytes.Buffer{}, nil)

	assert.True(t, h.Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, h.Enabled(context.Background(), slog.LevelDebug))
}

func TestTerminalHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	bound := h.WithAttrs([]slog.Attr{slog.String("component", "indexer")})

	r := slog.NewRecord(time.Now(), slog.LevelInfo, "file indexed", 0)
	r.AddAttrs(slog.String("filepath", "internal/config/config.go"))
	require.NoError(t, bound.Handle(context.Background(), r))

	out := buf.String()
	assert.Contains(t, out, "component=")
	assert.Contains(t, out, "indexer")
	assert.Contains(t, out, "filepath=")

	// The original handler must not have picked up the bound attribute.
	buf.Reset()
	require.NoError(t, h.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "plain", 0)))
	assert.NotContains(t, buf.String(), "component=")
}

func TestTerminalHandlerGroups(t *testing.T) {
	t.Run("WithGroup prefixes attribute keys", func(t *testing.T) {
		var buf bytes.Buffer
		h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}).WithGroup("qdrant")

		r := slog.NewRecord(time.Now(), slog.LevelInfo, "search", 0)
		r.AddAttrs(slog.Int("limit", 10))
		require.NoError(t, h.Handle(context.Background(), r))

		assert.Contains(t, buf.String(), "qdrant.limit=")
	})

	t.Run("empty group name is a no-op", func(t *testing.T) {
		h := newTerminalHandler(&bytes.Buffer{}, nil)
		assert.Same(t, slog.Handler(h), h.WithGroup(""))
	})

	t.Run("inline group attributes are flattened", func(t *testing.T) {
		var buf bytes.Buffer
		h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

		r := slog.NewRecord(time.Now(), slog.LevelInfo, "commit indexed", 0)
		r.AddAttrs(slog.Group("commit",
			slog.String("oid", "f00dcafe"),
			slog.Int("diffs", 3),
		))
		require.NoError(t, h.Handle(context.Background(), r))

		out := buf.String()
		assert.Contains(t, out, "commit.oid=")
		assert.Contains(t, out, "commit.diffs=")
	})
}

func TestTerminalHandlerQuotesValuesWithSpaces(t *testing.T) {
	var buf bytes.Buffer
	h := newTerminalHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})

	r := slog.NewRecord(time.Now(), slog.LevelError, "qdrant unreachable", 0)
	r.AddAttrs(slog.String("error", "connection refused"))
	require.NoError(t, h.Handle(context.Background(), r))

	assert.Contains(t, buf.String(), `"connection refused"`)
}
