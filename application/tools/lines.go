package tools

import (
	"fmt"
	"strconv"
	"strings"
)

// lineFilter restricts file content to specific line ranges. It accepts
// GitHub-style references such as "L17-L26,L45,L55-L90".
type lineFilter struct {
	ranges []lineRange
}

type lineRange struct {
	start int
	end   int
}

// parseLineFilter parses a lines parameter. An empty parameter yields a
// pass-through filter.
func parseLineFilter(param string) (lineFilter, error) {
	param = strings.TrimSpace(param)
	if param == "" {
		return lineFilter{}, nil
	}

	parts := strings.Split(param, ",")
	ranges := make([]lineRange, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		r, err := parseLineRange(part)
		if err != nil {
			return lineFilter{}, fmt.Errorf("%w: line range %q: %v", ErrInvalidArgument, part, err)
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		return lineFilter{}, fmt.Errorf("%w: empty line filter", ErrInvalidArgument)
	}

	return lineFilter{ranges: ranges}, nil
}

// empty reports whether the filter passes content through unchanged.
func (f lineFilter) empty() bool {
	return len(f.ranges) == 0
}

// extract returns the selected lines, each prefixed with its original
// 1-based line number. Non-contiguous ranges are separated by an
// ellipsis line; references past the end of the file are dropped.
func (f lineFilter) extract(content string) string {
	lines := strings.Split(content, "\n")
	var b strings.Builder
	prev := 0

	for _, r := range f.ranges {
		start, end := r.start, r.end
		if start > len(lines) {
			continue
		}
		if end > len(lines) {
			end = len(lines)
		}
		if prev > 0 && start > prev+1 {
			b.WriteString("...\n")
		}
		for i := start; i <= end; i++ {
			fmt.Fprintf(&b, "%d\t%s\n", i, lines[i-1])
		}
		prev = end
	}

	return strings.TrimRight(b.String(), "\n")
}

func parseLineRange(s string) (lineRange, error) {
	if idx := strings.Index(s, "-L"); idx > 0 {
		start, err := strconv.Atoi(strings.TrimPrefix(s[:idx], "L"))
		if err != nil {
			return lineRange{}, fmt.Errorf("invalid start line: %w", err)
		}
		end, err := strconv.Atoi(strings.TrimPrefix(s[idx+1:], "L"))
		if err != nil {
			return lineRange{}, fmt.Errorf("invalid end line: %w", err)
		}
		if start < 1 || end < 1 {
			return lineRange{}, fmt.Errorf("line numbers must be positive")
		}
		if start > end {
			return lineRange{}, fmt.Errorf("start line %d exceeds end line %d", start, end)
		}
		return lineRange{start: start, end: end}, nil
	}

	line, err := strconv.Atoi(strings.TrimPrefix(s, "L"))
	if err != nil {
		return lineRange{}, fmt.Errorf("invalid line number: %w", err)
	}
	if line < 1 {
		return lineRange{}, fmt.Errorf("line numbers must be positive")
	}
	return lineRange{start: line, end: line}, nil
}
