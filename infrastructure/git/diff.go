package git

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/codecompass/codecompass/domain/repository"
)

// lineEdit is one line of a line-granular diff.
type lineEdit struct {
	op   diffmatchpatch.Operation
	text string
}

// renderFileDiff produces git-style unified diff text for one changed
// file. Binary content on either side collapses the body to a marker.
// Returns "" when the two texts are line-identical.
func renderFileDiff(path string, changeType repository.ChangeType, oldContent, newContent []byte, contextLines int) string {
	if isBinary(oldContent) || isBinary(newContent) {
		return renderBinaryFileDiff(path, changeType)
	}

	hunks := unifiedHunks(string(oldContent), string(newContent), contextLines)
	if hunks == "" {
		return ""
	}
	return fileHeader(path, changeType) + hunks
}

// renderBinaryFileDiff produces the marker-only diff for a file whose
// content is binary on either side.
func renderBinaryFileDiff(path string, changeType repository.ChangeType) string {
	return fileHeader(path, changeType) + binaryDiffBody + "\n"
}

// fileHeader renders the git-style two-line file header plus the
// "diff --git" banner.
func fileHeader(path string, changeType repository.ChangeType) string {
	var header strings.Builder
	fmt.Fprintf(&header, "diff --git a/%s b/%s\n", path, path)

	switch changeType {
	case repository.ChangeTypeAdd:
		fmt.Fprintf(&header, "--- /dev/null\n+++ b/%s\n", path)
	case repository.ChangeTypeDelete:
		fmt.Fprintf(&header, "--- a/%s\n+++ /dev/null\n", path)
	default:
		fmt.Fprintf(&header, "--- a/%s\n+++ b/%s\n", path, path)
	}
	return header.String()
}

// isBinaryMarker reports whether diff is a marker-only binary file
// diff. Marker lines inside textual hunks carry a +/-/space prefix and
// do not match.
func isBinaryMarker(diff string) bool {
	return strings.HasSuffix(diff, "\n"+binaryDiffBody+"\n")
}

// unifiedHunks diffs two texts line by line and renders unified hunks
// with the given number of context lines. Returns "" when the texts
// are line-identical.
func unifiedHunks(oldText, newText string, contextLines int) string {
	if contextLines < 0 {
		contextLines = 0
	}
	if oldText == newText {
		return ""
	}

	dmp := diffmatchpatch.New()
	oldEncoded, newEncoded, lineArray := dmp.DiffLinesToChars(oldText, newText)
	diffs := dmp.DiffMain(oldEncoded, newEncoded, false)
	diffs = dmp.DiffCharsToLines(diffs, lineArray)

	edits := splitEdits(diffs)
	groups := groupEdits(edits, contextLines)
	if len(groups) == 0 {
		return ""
	}

	// Old/new line numbers of the first line of each edit, precomputed
	// so hunk headers can be derived per group.
	oldLine := make([]int, len(edits)+1)
	newLine := make([]int, len(edits)+1)
	oldLine[0], newLine[0] = 1, 1
	for i, edit := range edits {
		oldLine[i+1] = oldLine[i]
		newLine[i+1] = newLine[i]
		if edit.op != diffmatchpatch.DiffInsert {
			oldLine[i+1]++
		}
		if edit.op != diffmatchpatch.DiffDelete {
			newLine[i+1]++
		}
	}

	var out strings.Builder
	for _, g := range groups {
		oldCount, newCount := 0, 0
		for i := g.start; i < g.end; i++ {
			if edits[i].op != diffmatchpatch.DiffInsert {
				oldCount++
			}
			if edits[i].op != diffmatchpatch.DiffDelete {
				newCount++
			}
		}

		oldStart := oldLine[g.start]
		newStart := newLine[g.start]
		// Unified convention: a zero-length range is anchored on the
		// preceding line.
		if oldCount == 0 {
			oldStart--
		}
		if newCount == 0 {
			newStart--
		}

		fmt.Fprintf(&out, "@@ -%d,%d +%d,%d @@\n", oldStart, oldCount, newStart, newCount)
		for i := g.start; i < g.end; i++ {
			switch edits[i].op {
			case diffmatchpatch.DiffDelete:
				out.WriteString("-")
			case diffmatchpatch.DiffInsert:
				out.WriteString("+")
			default:
				out.WriteString(" ")
			}
			out.WriteString(edits[i].text)
			out.WriteString("\n")
		}
	}

	return out.String()
}

// splitEdits flattens line-mode diffs into one entry per line, without
// trailing newlines.
func splitEdits(diffs []diffmatchpatch.Diff) []lineEdit {
	var edits []lineEdit
	for _, d := range diffs {
		text := d.Text
		for text != "" {
			idx := strings.IndexByte(text, '\n')
			if idx == -1 {
				edits = append(edits, lineEdit{op: d.Type, text: text})
				break
			}
			edits = append(edits, lineEdit{op: d.Type, text: text[:idx]})
			text = text[idx+1:]
		}
	}
	return edits
}

// editGroup is a half-open range of edits rendered as one hunk.
type editGroup struct {
	start, end int
}

// groupEdits builds hunk ranges: each run of changed lines expanded by
// contextLines of equal lines, with overlapping or touching ranges
// merged.
func groupEdits(edits []lineEdit, contextLines int) []editGroup {
	var groups []editGroup
	for i := 0; i < len(edits); i++ {
		if edits[i].op == diffmatchpatch.DiffEqual {
			continue
		}

		// Extend the run through subsequent changed lines and any
		// equal gaps short enough to share a hunk.
		end := i + 1
		for end < len(edits) {
			if edits[end].op != diffmatchpatch.DiffEqual {
				end++
				continue
			}
			gap := 0
			for end+gap < len(edits) && edits[end+gap].op == diffmatchpatch.DiffEqual {
				gap++
			}
			if end+gap == len(edits) || gap > 2*contextLines {
				break
			}
			end += gap
		}

		start := i - contextLines
		if start < 0 {
			start = 0
		}
		stop := end + contextLines
		if stop > len(edits) {
			stop = len(edits)
		}
		groups = append(groups, editGroup{start: start, end: stop})
		i = end
	}
	return groups
}
