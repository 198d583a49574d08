package chunking

import (
	"strings"
	"unicode"
)

// Preprocess normalizes text before embedding and before deriving point
// IDs from it. CRLF becomes LF, control characters other than tab and
// newline are dropped, runs of spaces and tabs collapse to a single
// space, and leading/trailing whitespace is trimmed. Applying it twice
// yields the same output as applying it once.
func Preprocess(text string) string {
	if text == "" {
		return ""
	}

	var b strings.Builder
	b.Grow(len(text))
	inRun := false
	for _, r := range strings.ReplaceAll(text, "\r\n", "\n") {
		switch {
		case r == '\n':
			b.WriteRune(r)
			inRun = false
		case r == ' ' || r == '\t':
			if !inRun {
				b.WriteByte(' ')
				inRun = true
			}
		case unicode.IsControl(r):
			// dropped
		default:
			b.WriteRune(r)
			inRun = false
		}
	}
	return strings.TrimSpace(b.String())
}
