// Package filediff computes human-readable, line-level diffs between two
// blobs. It has no bearing on the structural diff forest in
// internal/diffengine (which is purely hash-based); it exists only to
// render a changed blob leaf (added, removed, or modified) as a patch, the way the teacher's
// worktree_diff.go rendered a line-level FileDiff for `git diff`.
package filediff

import (
	"bytes"
	"strings"

	dmp "github.com/sergi/go-diff/diffmatchpatch"
)

// maxBlobSize caps the content size this package will diff. Larger blobs
// are reported as Truncated rather than diffed line by line.
const maxBlobSize = 512 * 1024

// DefaultContextLines is the number of unchanged lines of context kept
// around each hunk of changes, mirroring the teacher's unified-diff default.
const DefaultContextLines = 3

// DiffLine is a single rendered line within a hunk.
type DiffLine struct {
	Type    string // "context", "deletion", "addition"
	Content string
	OldLine int // 1-based; 0 if not applicable
	NewLine int // 1-based; 0 if not applicable
}

// DiffHunk is a contiguous run of context and changed lines.
type DiffHunk struct {
	OldStart, OldLines int
	NewStart, NewLines int
	Lines              []DiffLine
}

// FileDiff is the rendered diff between two blob contents at a path.
type FileDiff struct {
	Path      string
	IsBinary  bool
	Truncated bool
	Hunks     []DiffHunk
}

// Compute renders a unified, hunked diff between oldContent and newContent.
// Either may be nil (added/deleted file). contextLines <= 0 uses
// DefaultContextLines.
func Compute(path string, oldContent, newContent []byte, contextLines int) FileDiff {
	if contextLines <= 0 {
		contextLines = DefaultContextLines
	}

	result := FileDiff{Path: path}

	if len(oldContent) > maxBlobSize || len(newContent) > maxBlobSize {
		result.Truncated = true
		return result
	}
	if isBinary(oldContent) || isBinary(newContent) {
		result.IsBinary = true
		return result
	}

	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	d := dmp.New()
	oldText, newText, lineArray := d.DiffLinesToChars(string(oldContent), string(newContent))
	diffs := d.DiffMain(oldText, newText, false)
	diffs = d.DiffCharsToLines(diffs, lineArray)

	edits := toLineEdits(diffs)
	result.Hunks = buildHunks(oldLines, newLines, edits, contextLines)
	return result
}

type editType int

const (
	editKeep editType = iota
	editDelete
	editInsert
)

type edit struct {
	Type    editType
	OldLine int
	NewLine int
}

// toLineEdits flattens diffmatchpatch's line-grouped Diff slice (each Diff
// holds a run of whole lines, since DiffLinesToChars/DiffCharsToLines
// collapses each line to a single rune) into one edit per line, carrying
// the 0-based index each changed line occupies in its own side.
func toLineEdits(diffs []dmp.Diff) []edit {
	var edits []edit
	oldIdx, newIdx := 0, 0
	for _, d := range diffs {
		lines := strings.Split(d.Text, "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		switch d.Type {
		case dmp.DiffEqual:
			for range lines {
				edits = append(edits, edit{Type: editKeep, OldLine: oldIdx, NewLine: newIdx})
				oldIdx++
				newIdx++
			}
		case dmp.DiffDelete:
			for range lines {
				edits = append(edits, edit{Type: editDelete, OldLine: oldIdx})
				oldIdx++
			}
		case dmp.DiffInsert:
			for range lines {
				edits = append(edits, edit{Type: editInsert, NewLine: newIdx})
				newIdx++
			}
		}
	}
	return edits
}

func buildHunks(oldLines, newLines []string, edits []edit, context int) []DiffHunk {
	var hunks []DiffHunk
	var cur *DiffHunk
	lastChange := -1

	flush := func() {
		if cur == nil {
			return
		}
		for _, l := range cur.Lines {
			if l.Type == "context" || l.Type == "deletion" {
				cur.OldLines++
			}
			if l.Type == "context" || l.Type == "addition" {
				cur.NewLines++
			}
		}
		hunks = append(hunks, *cur)
		cur = nil
	}

	for i, e := range edits {
		isChange := e.Type != editKeep
		if isChange && cur == nil {
			cur = &DiffHunk{}
			start := i - context
			if start < 0 {
				start = 0
			}
			for j := start; j < i; j++ {
				appendContext(cur, oldLines, edits[j])
			}
			if len(cur.Lines) > 0 {
				cur.OldStart = cur.Lines[0].OldLine
				cur.NewStart = cur.Lines[0].NewLine
			} else {
				cur.OldStart = e.OldLine + 1
				cur.NewStart = e.NewLine + 1
			}
		}
		if cur == nil {
			continue
		}

		switch e.Type {
		case editKeep:
			if lastChange >= 0 && i-lastChange > context*2 {
				// The 2*context unchanged lines since the last change are
				// already in cur; keep only the first context of them.
				cur.Lines = cur.Lines[:len(cur.Lines)-context]
				flush()
				lastChange = -1
				continue
			}
			appendContext(cur, oldLines, e)
		case editDelete:
			cur.Lines = append(cur.Lines, DiffLine{Type: "deletion", Content: oldLines[e.OldLine], OldLine: e.OldLine + 1})
			lastChange = i
		case editInsert:
			cur.Lines = append(cur.Lines, DiffLine{Type: "addition", Content: newLines[e.NewLine], NewLine: e.NewLine + 1})
			lastChange = i
		}
	}

	if cur != nil {
		// Trailing unchanged lines are already in cur; keep at most context.
		if trailing := len(edits) - 1 - lastChange; trailing > context {
			cur.Lines = cur.Lines[:len(cur.Lines)-(trailing-context)]
		}
		flush()
	}

	return hunks
}

func appendContext(h *DiffHunk, oldLines []string, e edit) {
	if e.Type != editKeep {
		return
	}
	h.Lines = append(h.Lines, DiffLine{Type: "context", Content: oldLines[e.OldLine], OldLine: e.OldLine + 1, NewLine: e.NewLine + 1})
}

func isBinary(data []byte) bool {
	limit := len(data)
	if limit > 8192 {
		limit = 8192
	}
	return bytes.IndexByte(data[:limit], 0) != -1
}

func splitLines(content []byte) []string {
	if len(content) == 0 {
		return []string{}
	}
	lines := strings.Split(string(content), "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}
