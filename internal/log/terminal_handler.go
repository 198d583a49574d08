package log

import (
	"context"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiBold   = "\033[1m"
	ansiRed    = "\033[31m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiCyan   = "\033[36m"
)

// TerminalHandler formats log records as coloured terminal output.
//
// Output format:
//
//	15:04:05.000 INF indexing started repo=/src/app
type TerminalHandler struct {
	writer io.Writer
	level  slog.Leveler
	// prefix is the dotted group path applied to attribute keys, e.g.
	// "qdrant." after WithGroup("qdrant").
	prefix string
	// bound holds attributes from WithAttrs, already rendered.
	bound []byte
	mu    *sync.Mutex
}

func newTerminalHandler(w io.Writer, opts *slog.HandlerOptions) *TerminalHandler {
	h := &TerminalHandler{
		writer: w,
		level:  slog.LevelInfo,
		mu:     &sync.Mutex{},
	}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

// Enabled reports whether the handler handles records at the given level.
func (h *TerminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

// Handle formats a log record as coloured terminal output and writes it.
func (h *TerminalHandler) Handle(_ context.Context, r slog.Record) error {
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	line := make([]byte, 0, 256)
	line = append(line, ansiDim...)
	line = ts.AppendFormat(line, "15:04:05.000")
	line = append(line, ansiReset...)
	line = append(line, ' ')

	colour, label := levelTag(r.Level)
	line = append(line, colour...)
	line = append(line, label...)
	line = append(line, ansiReset...)
	line = append(line, ' ')

	line = append(line, ansiBold...)
	line = append(line, r.Message...)
	line = append(line, ansiReset...)

	line = append(line, h.bound...)
	r.Attrs(func(a slog.Attr) bool {
		line = renderAttr(line, h.prefix, a)
		return true
	})
	line = append(line, '\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.writer.Write(line)
	return err
}

// WithAttrs returns a new handler that emits attrs on every record, after
// any attributes already bound. Rendering happens here, once.
func (h *TerminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.bound = make([]byte, len(h.bound), len(h.bound)+64)
	copy(clone.bound, h.bound)
	for _, a := range attrs {
		clone.bound = renderAttr(clone.bound, h.prefix, a)
	}
	return &clone
}

// WithGroup returns a new handler with the given group name prepended to
// subsequent attribute keys.
func (h *TerminalHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = h.prefix + name + "."
	return &clone
}

func levelTag(level slog.Level) (colour, label string) {
	switch {
	case level < slog.LevelInfo:
		return ansiCyan, "DBG"
	case level < slog.LevelWarn:
		return ansiGreen, "INF"
	case level < slog.LevelError:
		return ansiYellow, "WRN"
	default:
		return ansiRed, "ERR"
	}
}

// renderAttr appends " key=value" to line, flattening group attributes
// into dotted keys. Empty attributes are skipped per the slog contract.
func renderAttr(line []byte, prefix string, a slog.Attr) []byte {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return line
	}

	if a.Value.Kind() == slog.KindGroup {
		sub := prefix
		if a.Key != "" {
			sub = prefix + a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			line = renderAttr(line, sub, ga)
		}
		return line
	}

	line = append(line, ' ')
	line = append(line, ansiDim...)
	line = append(line, prefix...)
	line = append(line, a.Key...)
	line = append(line, '=')
	line = append(line, ansiReset...)

	val := a.Value.String()
	if a.Value.Kind() == slog.KindString && strings.ContainsAny(val, " \t\n\"\\") {
		return strconv.AppendQuote(line, val)
	}
	return append(line, val...)
}
