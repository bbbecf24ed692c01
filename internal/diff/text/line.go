package text

import (
	"bytes"
)

type op byte

const (
	keep   op = ' '
	insert op = '+'
	remove op = '-'
)

type edit struct {
	op   op
	line []byte
	// number is the 1-based line in the baseline for keep and remove.
	number int
}

// LineDiff compares newline separated documents such as mode files, one
// row per line.
type LineDiff struct{}

func NewLineDiff() *LineDiff {
	return &LineDiff{}
}

func (d *LineDiff) Calculate(baseline []byte, target []byte) (*DiffResult, error) {
	before := splitLines(baseline)
	after := splitLines(target)

	edits := script(before, after)

	var out bytes.Buffer
	var changed []int
	inserted, removed := 0, 0
	for i, e := range edits {
		if i > 0 {
			out.WriteByte('\n')
		}
		out.WriteByte(byte(e.op))
		out.WriteByte(' ')
		out.Write(e.line)

		switch e.op {
		case insert:
			inserted++
		case remove:
			removed++
			changed = append(changed, e.number)
		}
	}

	diffAmount := 0.0
	if total := len(before) + len(after); total > 0 {
		diffAmount = min(float64(inserted+removed)/float64(total), 1.0)
	}

	return &DiffResult{
		Diff:       out.Bytes(),
		DiffAmount: diffAmount,
		Changed:    changed,
	}, nil
}

// splitLines drops one trailing newline so that a file saved by an editor
// lines up with one written without it.
func splitLines(data []byte) [][]byte {
	data = bytes.TrimSuffix(data, []byte("\n"))
	if len(data) == 0 {
		return nil
	}
	lines := bytes.Split(data, []byte("\n"))
	for i, line := range lines {
		lines[i] = bytes.TrimSuffix(line, []byte("\r"))
	}
	return lines
}

// script walks a suffix LCS table forwards, preferring removals before
// insertions so a replaced line reads as "-" followed by "+".
func script(before [][]byte, after [][]byte) []edit {
	m, n := len(before), len(after)
	table := make([][]int, m+1)
	for i := range table {
		table[i] = make([]int, n+1)
	}
	for i := m - 1; i >= 0; i-- {
		for j := n - 1; j >= 0; j-- {
			if bytes.Equal(before[i], after[j]) {
				table[i][j] = table[i+1][j+1] + 1
			} else {
				table[i][j] = max(table[i+1][j], table[i][j+1])
			}
		}
	}

	edits := make([]edit, 0, max(m, n))
	i, j := 0, 0
	for i < m || j < n {
		switch {
		case i < m && j < n && bytes.Equal(before[i], after[j]):
			edits = append(edits, edit{op: keep, line: before[i], number: i + 1})
			i++
			j++
		case i < m && (j == n || table[i+1][j] >= table[i][j+1]):
			edits = append(edits, edit{op: remove, line: before[i], number: i + 1})
			i++
		default:
			edits = append(edits, edit{op: insert, line: after[j]})
			j++
		}
	}
	return edits
}
