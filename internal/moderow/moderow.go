package moderow

import (
	"bytes"
	"errors"
	"strings"

	"golang.org/x/xerrors"
)

type Tag byte

const (
	Plain Tag = 'P'
	Latex Tag = 'L'
)

const delimiter = '$'

var ErrUnterminatedSpan = errors.New("unterminated latex span")

// Row holds one Tag per character of the classified text.
type Row []Tag

func (r Row) String() string {
	return string(r)
}

func (r Row) Count(t Tag) int {
	n := 0
	for _, tag := range r {
		if tag == t {
			n++
		}
	}
	return n
}

type state int

const (
	outside state = iota
	inside
)

// Classify tags every rune of text as Plain or Latex. Mode is driven by
// '$' delimiters only; a delimiter belongs to the span it opens or closes.
func Classify(text string) (Row, error) {
	row := make(Row, 0, len(text))
	s := outside
	opened := 0
	column := 0
	for _, r := range text {
		if r == delimiter {
			row = append(row, Latex)
			if s == outside {
				s = inside
				opened = column
			} else {
				s = outside
			}
		} else if s == inside {
			row = append(row, Latex)
		} else {
			row = append(row, Plain)
		}
		column++
	}

	if s == inside {
		return nil, xerrors.Errorf("span opened at column %d: %w", opened, ErrUnterminatedSpan)
	}
	return row, nil
}

// Span is a maximal run of characters sharing one Tag. Start is the rune
// column of the first character.
type Span struct {
	Tag   Tag
	Text  string
	Start int
}

// Formula returns the span text without its enclosing delimiters.
func (s Span) Formula() string {
	if s.Tag != Latex {
		return s.Text
	}
	return strings.TrimSuffix(strings.TrimPrefix(s.Text, "$"), "$")
}

func (s Span) Width() int {
	return len([]rune(s.Text))
}

func Split(text string) ([]Span, error) {
	row, err := Classify(text)
	if err != nil {
		return nil, err
	}

	runes := []rune(text)
	var spans []Span
	start := 0
	for i := 1; i <= len(runes); i++ {
		if i < len(runes) && row[i] == row[start] {
			continue
		}
		// "$a$$b$" is two formulas even though the tags never change.
		if row[start] == Latex {
			spans = append(spans, splitFormulas(runes[start:i], start)...)
		} else {
			spans = append(spans, Span{Tag: Plain, Text: string(runes[start:i]), Start: start})
		}
		start = i
	}
	return spans, nil
}

func splitFormulas(runes []rune, offset int) []Span {
	var spans []Span
	start := 0
	closing := false
	for i, r := range runes {
		if r != delimiter {
			continue
		}
		if closing {
			spans = append(spans, Span{Tag: Latex, Text: string(runes[start : i+1]), Start: offset + start})
			start = i + 1
		}
		closing = !closing
	}
	return spans
}

// ClassifyLines classifies every newline separated row of data. The first
// malformed row aborts the whole classification.
func ClassifyLines(data []byte) ([]Row, error) {
	lines := bytes.Split(data, []byte("\n"))
	rows := make([]Row, 0, len(lines))
	for i, line := range lines {
		row, err := Classify(string(bytes.TrimSuffix(line, []byte("\r"))))
		if err != nil {
			return nil, xerrors.Errorf("line %d: %w", i+1, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// Format renders rows in the on-disk modes format, one mode string per line.
func Format(rows []Row) []byte {
	var b bytes.Buffer
	for i, row := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(row.String())
	}
	return b.Bytes()
}
