package render

import (
	"asciitex/internal/moderow"
	"bytes"
	"context"
	"errors"
	"image"
	"image/draw"
	"image/png"
	"log/slog"
	"strings"
	"unicode"
	"unicode/utf8"

	"codeberg.org/go-fonts/liberation/liberationmonoregular"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/math/fixed"
	"golang.org/x/xerrors"
)

var ErrEmptyDiagram = errors.New("diagram has no characters")

type Result struct {
	Image *image.RGBA
	PNG   []byte
	// Modes is the newline separated mode string of every row as drawn.
	Modes []byte
	Rows  []moderow.Row
}

type Renderer struct {
	config     Config
	typesetter Typesetter
	face       font.Face
	logger     *slog.Logger
}

type Option func(*Renderer)

func WithTypesetter(t Typesetter) Option {
	return func(r *Renderer) {
		r.typesetter = t
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Renderer) {
		r.logger = l
	}
}

func NewRenderer(config Config, opts ...Option) (*Renderer, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	face, err := newFace(config)
	if err != nil {
		return nil, err
	}

	r := &Renderer{
		config: config,
		face:   face,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.typesetter == nil {
		r.typesetter = NewMathTypesetter(config.FontSize, config.DPI)
	}
	return r, nil
}

func newFace(config Config) (font.Face, error) {
	switch config.Face {
	case "", FaceBasic:
		return basicfont.Face7x13, nil
	case FaceLiberationMono:
		f, err := opentype.Parse(liberationmonoregular.TTF)
		if err != nil {
			return nil, xerrors.Errorf("failed to parse LiberationMono-Regular: %w", err)
		}
		face, err := opentype.NewFace(f, &opentype.FaceOptions{
			// One point per pixel at 72 dpi, leaving a quarter of the cell for leading.
			Size:    float64(config.CellHeight) * 0.75,
			DPI:     72,
			Hinting: font.HintingFull,
		})
		if err != nil {
			return nil, xerrors.Errorf("failed to create face: %w", err)
		}
		return face, nil
	}
	return nil, xerrors.Errorf("unknown face: %s", config.Face)
}

func (r *Renderer) Render(ctx context.Context, source []byte) (*Result, error) {
	lines := r.lines(source)

	columns := 0
	for _, line := range lines {
		columns = max(columns, utf8.RuneCountInString(line))
	}
	if columns == 0 {
		return nil, ErrEmptyDiagram
	}

	cw, ch := r.config.CellWidth, r.config.CellHeight
	img := image.NewRGBA(image.Rect(0, 0, columns*cw, len(lines)*ch))
	draw.Draw(img, img.Bounds(), image.NewUniform(r.config.Background), image.Point{}, draw.Src)

	rows := make([]moderow.Row, 0, len(lines))
	for y, line := range lines {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := r.drawRow(img, y, line)
		if err != nil {
			return nil, xerrors.Errorf("row %d: %w", y+1, err)
		}
		rows = append(rows, row)
	}

	var buffer bytes.Buffer
	if err := png.Encode(&buffer, img); err != nil {
		return nil, xerrors.Errorf("failed to encode image: %w", err)
	}

	return &Result{
		Image: img,
		PNG:   buffer.Bytes(),
		Modes: moderow.Format(rows),
		Rows:  rows,
	}, nil
}

// lines splits source into tab expanded rows. A trailing newline does not
// start another row.
func (r *Renderer) lines(source []byte) []string {
	text := strings.ReplaceAll(string(source), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = expandTabs(line, r.config.TabWidth)
	}
	return lines
}

func expandTabs(line string, tabWidth int) string {
	if !strings.ContainsRune(line, '\t') {
		return line
	}

	var b strings.Builder
	column := 0
	for _, c := range line {
		if c != '\t' {
			b.WriteRune(c)
			column++
			continue
		}
		for pad := tabWidth - column%tabWidth; pad > 0; pad-- {
			b.WriteByte(' ')
			column++
		}
	}
	return b.String()
}

func (r *Renderer) drawRow(img *image.RGBA, y int, line string) (moderow.Row, error) {
	plain := func() (moderow.Row, error) {
		r.drawText(img, 0, y, line)
		return plainRow(line), nil
	}

	if !r.config.LatexMath {
		return plain()
	}

	spans, err := moderow.Split(line)
	if err != nil {
		if r.config.Strict {
			return nil, err
		}
		r.logger.Warn("drawing row as plain text", slog.Int("row", y+1), slog.String("error", err.Error()))
		return plain()
	}

	row := make(moderow.Row, 0, utf8.RuneCountInString(line))
	for _, span := range spans {
		switch span.Tag {
		case moderow.Latex:
			if err := r.drawFormula(img, span.Start, y, span); err != nil {
				if r.config.Strict {
					return nil, err
				}
				r.logger.Warn("drawing formula as plain text", slog.Int("row", y+1), slog.Int("column", span.Start+1), slog.String("error", err.Error()))
				r.drawText(img, span.Start, y, span.Text)
				row = append(row, plainRow(span.Text)...)
				continue
			}
		default:
			r.drawText(img, span.Start, y, span.Text)
		}
		for range span.Width() {
			row = append(row, span.Tag)
		}
	}
	return row, nil
}

func plainRow(text string) moderow.Row {
	row := make(moderow.Row, utf8.RuneCountInString(text))
	for i := range row {
		row[i] = moderow.Plain
	}
	return row
}

// drawText draws each rune centered in its own cell starting at column x.
func (r *Renderer) drawText(img *image.RGBA, x int, y int, text string) {
	cw, ch := r.config.CellWidth, r.config.CellHeight
	metrics := r.face.Metrics()
	top := (fixed.I(ch) - metrics.Height) / 2

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(r.config.Foreground),
		Face: r.face,
	}
	for _, c := range text {
		if !unicode.IsSpace(c) {
			advance, ok := r.face.GlyphAdvance(c)
			if !ok {
				advance = fixed.I(cw)
			}
			d.Dot = fixed.Point26_6{
				X: fixed.I(x*cw) + (fixed.I(cw)-advance)/2,
				Y: fixed.I(y*ch) + top + metrics.Ascent,
			}
			d.DrawString(string(c))
		}
		x++
	}
}

// drawFormula scales the typeset formula into the cells of span, keeping
// its aspect ratio, and paints its ink in the foreground color.
func (r *Renderer) drawFormula(img *image.RGBA, x int, y int, span moderow.Span) error {
	formula := span.Formula()
	if strings.TrimSpace(formula) == "" {
		return nil
	}

	typeset, err := r.typesetter.Typeset(formula)
	if err != nil {
		return err
	}
	src := typeset.Bounds()
	if src.Empty() {
		return nil
	}

	cw, ch := r.config.CellWidth, r.config.CellHeight
	box := image.Rect(x*cw, y*ch, (x+span.Width())*cw, (y+1)*ch)

	scale := min(float64(box.Dx())/float64(src.Dx()), float64(box.Dy())/float64(src.Dy()))
	w := max(int(float64(src.Dx())*scale), 1)
	h := max(int(float64(src.Dy())*scale), 1)
	offset := image.Pt(box.Min.X+(box.Dx()-w)/2, box.Min.Y+(box.Dy()-h)/2)

	mask := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(mask, mask.Bounds(), typeset, src, xdraw.Src, nil)

	target := image.Rectangle{Min: offset, Max: offset.Add(image.Pt(w, h))}
	draw.DrawMask(img, target, image.NewUniform(r.config.Foreground), image.Point{}, mask, image.Point{}, draw.Over)
	return nil
}
