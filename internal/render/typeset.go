package render

import (
	"bytes"
	"image"
	"image/png"

	"codeberg.org/go-fonts/liberation/liberationserifbold"
	"codeberg.org/go-fonts/liberation/liberationserifbolditalic"
	"codeberg.org/go-fonts/liberation/liberationserifitalic"
	"codeberg.org/go-fonts/liberation/liberationserifregular"
	"codeberg.org/go-latex/latex/drawtex/drawimg"
	"codeberg.org/go-latex/latex/font/ttf"
	"codeberg.org/go-latex/latex/mtex"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/xerrors"
)

// Typesetter turns the body of a $...$ span into an image. Ink is read from
// the alpha channel; colors are ignored.
type Typesetter interface {
	Typeset(formula string) (image.Image, error)
}

type MathTypesetter struct {
	size  float64
	dpi   float64
	fonts *ttf.Fonts
}

type TypesetterOption func(*MathTypesetter)

// WithFonts replaces the Go fonts bundled with go-latex.
func WithFonts(fonts *ttf.Fonts) TypesetterOption {
	return func(m *MathTypesetter) {
		m.fonts = fonts
	}
}

func NewMathTypesetter(size float64, dpi float64, opts ...TypesetterOption) *MathTypesetter {
	m := &MathTypesetter{
		size: size,
		dpi:  dpi,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *MathTypesetter) Typeset(formula string) (img image.Image, err error) {
	// drawimg panics on glyphs missing from the font.
	defer func() {
		if r := recover(); r != nil {
			img = nil
			err = xerrors.Errorf("failed to typeset %q: %v", formula, r)
		}
	}()

	var buffer bytes.Buffer
	if err := mtex.Render(drawimg.NewRenderer(&buffer), "$"+formula+"$", m.size, m.dpi, m.fonts); err != nil {
		return nil, xerrors.Errorf("failed to typeset %q: %w", formula, err)
	}

	img, err = png.Decode(&buffer)
	if err != nil {
		return nil, xerrors.Errorf("failed to decode typeset %q: %w", formula, err)
	}
	return img, nil
}

// LiberationFonts returns the Liberation Serif family for WithFonts.
func LiberationFonts() (*ttf.Fonts, error) {
	parse := func(name string, data []byte) (*sfnt.Font, error) {
		f, err := sfnt.Parse(data)
		if err != nil {
			return nil, xerrors.Errorf("failed to parse %s: %w", name, err)
		}
		return f, nil
	}

	rm, err := parse("LiberationSerif-Regular", liberationserifregular.TTF)
	if err != nil {
		return nil, err
	}
	it, err := parse("LiberationSerif-Italic", liberationserifitalic.TTF)
	if err != nil {
		return nil, err
	}
	bf, err := parse("LiberationSerif-Bold", liberationserifbold.TTF)
	if err != nil {
		return nil, err
	}
	bfit, err := parse("LiberationSerif-BoldItalic", liberationserifbolditalic.TTF)
	if err != nil {
		return nil, err
	}

	return &ttf.Fonts{
		Default: rm,
		Rm:      rm,
		It:      it,
		Bf:      bf,
		BfIt:    bfit,
	}, nil
}
