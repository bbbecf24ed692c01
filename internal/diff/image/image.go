package image

import (
	"errors"
	"image"
	"image/color"
)

var (
	ErrSizeMismatch      = errors.New("sample buffers differ in size")
	ErrDimensionMismatch = errors.New("images differ in dimensions")
)

// Highlight marks differing pixels in difference images.
var Highlight = color.RGBA{R: 0xff, G: 0x00, B: 0xff, A: 0xff}

type DiffResult struct {
	Image      image.Image
	DiffAmount float64
}

type Differ interface {
	Calculate(baseline image.Image, target image.Image) (*DiffResult, error)
}

func NewDiffer(format string) (Differ, error) {
	switch format {
	case "highlight", "pixel":
		return NewHighlightDiff(), nil
	case "region", "rectangle":
		return NewRegionDiff(DefaultRegionGap), nil
	}
	return nil, errors.New("unknown diff format: " + format)
}
