package image

import (
	"image"
	"image/color"
	"runtime"
	"sync"
	"sync/atomic"

	"golang.org/x/xerrors"
)

// DifferenceImage returns a copy of a where every pixel that differs from b
// is replaced by Highlight. The result is opaque and has a's bounds.
func DifferenceImage(a image.Image, b image.Image) (*image.RGBA, error) {
	if err := checkDimensions(a, b); err != nil {
		return nil, err
	}

	diff := image.NewRGBA(a.Bounds())
	highlightRows(a, b, diff, 0, a.Bounds().Dy())
	return diff, nil
}

type HighlightDiff struct{}

func NewHighlightDiff() *HighlightDiff {
	return &HighlightDiff{}
}

func (h *HighlightDiff) Calculate(baseline image.Image, target image.Image) (*DiffResult, error) {
	if err := checkDimensions(baseline, target); err != nil {
		return nil, err
	}

	bounds := baseline.Bounds()
	diff := image.NewRGBA(bounds)
	height := bounds.Dy()
	totalPixelCount := int64(bounds.Dx() * height)

	var differingPixelCount int64
	forEachShard(height, func(startY int, endY int) {
		atomic.AddInt64(&differingPixelCount, highlightRows(baseline, target, diff, startY, endY))
	})

	diffAmount := 0.0
	if totalPixelCount > 0 {
		diffAmount = float64(differingPixelCount) / float64(totalPixelCount)
	}

	return &DiffResult{
		Image:      diff,
		DiffAmount: diffAmount,
	}, nil
}

// forEachShard splits [0, height) into one contiguous range per worker and
// waits for all of them.
func forEachShard(height int, fn func(startY int, endY int)) {
	// Use GOMAXPROCS instead of runtime.NumCPU() to consider cgroup.
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > height {
		numWorkers = max(height, 1)
	}
	rowsPerWorker := height / numWorkers

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		startY := i * rowsPerWorker
		endY := startY + rowsPerWorker
		if i == numWorkers-1 {
			endY = height
		}

		go func(startY int, endY int) {
			defer wg.Done()
			fn(startY, endY)
		}(startY, endY)
	}
	wg.Wait()
}

// highlightRows fills rows [startY, endY) of diff, counted from the top of
// the bounds, and returns how many pixels differ.
func highlightRows(a image.Image, b image.Image, diff *image.RGBA, startY int, endY int) int64 {
	var differing int64
	ab := a.Bounds()
	bb := b.Bounds()
	for y := startY; y < endY; y++ {
		offset := diff.PixOffset(ab.Min.X, ab.Min.Y+y)
		for x := 0; x < ab.Dx(); x++ {
			ca := nrgbaAt(a, ab.Min.X+x, ab.Min.Y+y)
			cb := nrgbaAt(b, bb.Min.X+x, bb.Min.Y+y)

			p := diff.Pix[offset+x*4 : offset+x*4+4 : offset+x*4+4]
			if ca != cb {
				p[0], p[1], p[2], p[3] = Highlight.R, Highlight.G, Highlight.B, Highlight.A
				differing++
				continue
			}
			p[0], p[1], p[2], p[3] = ca.R, ca.G, ca.B, 0xff
		}
	}
	return differing
}

func nrgbaAt(img image.Image, x int, y int) color.NRGBA {
	if m, ok := img.(*image.NRGBA); ok {
		i := m.PixOffset(x, y)
		s := m.Pix[i : i+4 : i+4]
		return color.NRGBA{R: s[0], G: s[1], B: s[2], A: s[3]}
	}
	return color.NRGBAModel.Convert(img.At(x, y)).(color.NRGBA)
}

func pixelsDiffer(a image.Image, b image.Image, x int, y int) bool {
	ab := a.Bounds()
	bb := b.Bounds()
	return nrgbaAt(a, ab.Min.X+x, ab.Min.Y+y) != nrgbaAt(b, bb.Min.X+x, bb.Min.Y+y)
}

func checkDimensions(a image.Image, b image.Image) error {
	as := a.Bounds().Size()
	bs := b.Bounds().Size()
	if as != bs {
		return xerrors.Errorf("%dx%d against %dx%d: %w", as.X, as.Y, bs.X, bs.Y, ErrDimensionMismatch)
	}
	return nil
}
