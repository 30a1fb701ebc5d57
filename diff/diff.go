// Package diff computes line-level diffs with character-level refinement for
// modified lines, producing the structure the session UI renders.
package diff

import "strings"

// LineType classifies one line of a diff.
type LineType string

const (
	LineAdded     LineType = "added"
	LineRemoved   LineType = "removed"
	LineUnchanged LineType = "unchanged"
	LineModified  LineType = "modified"
)

// Span is a character run within a modified line.
type Span struct {
	Value   string `json:"value"`
	Added   bool   `json:"added,omitempty"`
	Removed bool   `json:"removed,omitempty"`
}

// Line is one row of the rendered diff. Line numbers are 1-based; zero means
// the line does not exist on that side.
type Line struct {
	Type    LineType `json:"type"`
	Content string   `json:"content"`
	OldLine int      `json:"old_line,omitempty"`
	NewLine int      `json:"new_line,omitempty"`
	// Spans is set only for modified lines.
	Spans []Span `json:"parts,omitempty"`
}

// Compute diffs two file contents. Adjacent removed/added pairs are collapsed
// into a single modified line carrying character-level spans.
func Compute(oldContent, newContent string) []Line {
	oldLines := splitLines(oldContent)
	newLines := splitLines(newContent)

	lines := diffLines(oldLines, newLines)
	return collapseModified(lines)
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	// Trailing newline produces an empty final element; drop it.
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// diffLines runs an LCS diff over whole lines and numbers both sides.
func diffLines(oldLines, newLines []string) []Line {
	ops := lcsOps(len(oldLines), len(newLines), func(i, j int) bool {
		return oldLines[i] == newLines[j]
	})

	var result []Line
	oldNo, newNo := 1, 1
	for _, op := range ops {
		switch op {
		case opKeep:
			result = append(result, Line{
				Type:    LineUnchanged,
				Content: oldLines[oldNo-1],
				OldLine: oldNo,
				NewLine: newNo,
			})
			oldNo++
			newNo++
		case opDelete:
			result = append(result, Line{
				Type:    LineRemoved,
				Content: oldLines[oldNo-1],
				OldLine: oldNo,
			})
			oldNo++
		case opInsert:
			result = append(result, Line{
				Type:    LineAdded,
				Content: newLines[newNo-1],
				NewLine: newNo,
			})
			newNo++
		}
	}
	return result
}

// collapseModified merges each removed line directly followed by an added
// line into one modified line with character spans.
func collapseModified(lines []Line) []Line {
	final := make([]Line, 0, len(lines))
	for i := 0; i < len(lines); i++ {
		if i+1 < len(lines) &&
			lines[i].Type == LineRemoved && lines[i+1].Type == LineAdded {
			final = append(final, Line{
				Type:    LineModified,
				Content: lines[i].Content,
				OldLine: lines[i].OldLine,
				NewLine: lines[i+1].NewLine,
				Spans:   diffChars(lines[i].Content, lines[i+1].Content),
			})
			i++
			continue
		}
		final = append(final, lines[i])
	}
	return final
}

// diffChars runs an LCS diff over runes and coalesces adjacent runs of the
// same type. Removed runs precede added runs at each change point.
func diffChars(oldStr, newStr string) []Span {
	oldRunes := []rune(oldStr)
	newRunes := []rune(newStr)

	ops := lcsOps(len(oldRunes), len(newRunes), func(i, j int) bool {
		return oldRunes[i] == newRunes[j]
	})

	var spans []Span
	oi, ni := 0, 0
	push := func(s Span) {
		if n := len(spans); n > 0 &&
			spans[n-1].Added == s.Added && spans[n-1].Removed == s.Removed {
			spans[n-1].Value += s.Value
			return
		}
		spans = append(spans, s)
	}
	for _, op := range ops {
		switch op {
		case opKeep:
			push(Span{Value: string(oldRunes[oi])})
			oi++
			ni++
		case opDelete:
			push(Span{Value: string(oldRunes[oi]), Removed: true})
			oi++
		case opInsert:
			push(Span{Value: string(newRunes[ni]), Added: true})
			ni++
		}
	}
	return spans
}

type op int

const (
	opKeep op = iota
	opDelete
	opInsert
)

// lcsOps computes an edit script between two sequences via the classic LCS
// table. Deletions are emitted before insertions at each divergence.
func lcsOps(n, m int, eq func(i, j int) bool) []op {
	table := make([][]int, n+1)
	for i := range table {
		table[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if eq(i, j) {
				table[i][j] = table[i+1][j+1] + 1
			} else if table[i+1][j] >= table[i][j+1] {
				table[i][j] = table[i+1][j]
			} else {
				table[i][j] = table[i][j+1]
			}
		}
	}

	var ops []op
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case eq(i, j):
			ops = append(ops, opKeep)
			i++
			j++
		case table[i+1][j] >= table[i][j+1]:
			ops = append(ops, opDelete)
			i++
		default:
			ops = append(ops, opInsert)
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, opDelete)
	}
	for ; j < m; j++ {
		ops = append(ops, opInsert)
	}
	return ops
}
