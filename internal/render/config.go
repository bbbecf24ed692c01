package render

import (
	"image/color"
	"strconv"

	"golang.org/x/xerrors"
)

type Config struct {
	CellWidth  int
	CellHeight int
	TabWidth   int
	// LatexMath enables $...$ spans. When off every character is drawn as is.
	LatexMath bool
	// Strict fails the render on an unterminated span or a formula that
	// cannot be typeset instead of drawing the row as plain text.
	Strict     bool
	FontSize   float64
	DPI        float64
	Face       string
	Foreground color.Color
	Background color.Color
}

const (
	FaceBasic          = "basic"
	FaceLiberationMono = "liberation-mono"
)

func DefaultConfig() Config {
	return Config{
		CellWidth:  9,
		CellHeight: 16,
		TabWidth:   8,
		LatexMath:  false,
		Strict:     false,
		FontSize:   12,
		DPI:        256,
		Face:       FaceBasic,
		Foreground: color.Black,
		Background: color.White,
	}
}

func (c Config) validate() error {
	if c.CellWidth <= 0 || c.CellHeight <= 0 {
		return xerrors.Errorf("invalid cell size %dx%d", c.CellWidth, c.CellHeight)
	}
	if c.TabWidth <= 0 {
		return xerrors.Errorf("invalid tab width %d", c.TabWidth)
	}
	if c.FontSize <= 0 || c.DPI <= 0 {
		return xerrors.Errorf("invalid font size %g at %g dpi", c.FontSize, c.DPI)
	}
	return nil
}

// ParseColor accepts #rgb and #rrggbb.
func ParseColor(s string) (color.RGBA, error) {
	if len(s) == 0 || s[0] != '#' {
		return color.RGBA{}, xerrors.Errorf("color %q can't be parsed", s)
	}

	hex := s[1:]
	var digits int
	switch len(hex) {
	case 3:
		digits = 1
	case 6:
		digits = 2
	default:
		return color.RGBA{}, xerrors.Errorf("color %q not of valid length", s)
	}

	var components [3]uint8
	for i := range components {
		v, err := strconv.ParseUint(hex[i*digits:(i+1)*digits], 16, 8)
		if err != nil {
			return color.RGBA{}, xerrors.Errorf("color %q: %w", s, err)
		}
		if digits == 1 {
			v *= 17
		}
		components[i] = uint8(v)
	}
	return color.RGBA{R: components[0], G: components[1], B: components[2], A: 0xff}, nil
}
