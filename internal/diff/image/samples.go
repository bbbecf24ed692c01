package image

import (
	"bytes"
	"image"
	"image/draw"

	"golang.org/x/xerrors"
)

// SampleBuffer is the raw encoded storage of an image restricted to its
// bounds. Width is the number of bytes making up one sample.
type SampleBuffer struct {
	Data  []byte
	Width int
}

func (s SampleBuffer) Len() int {
	if s.Width == 0 {
		return 0
	}
	return len(s.Data) / s.Width
}

// Samples returns the backing samples of img as stored by its concrete type.
// Images without a known backing slice are converted to NRGBA first.
func Samples(img image.Image) SampleBuffer {
	b := img.Bounds()
	if b.Empty() {
		return SampleBuffer{Width: 1}
	}

	switch m := img.(type) {
	case *image.RGBA:
		return SampleBuffer{Data: rows(m.Pix, m.Stride, m.PixOffset(b.Min.X, b.Min.Y), b.Dx()*4, b.Dy()), Width: 1}
	case *image.NRGBA:
		return SampleBuffer{Data: rows(m.Pix, m.Stride, m.PixOffset(b.Min.X, b.Min.Y), b.Dx()*4, b.Dy()), Width: 1}
	case *image.RGBA64:
		return SampleBuffer{Data: rows(m.Pix, m.Stride, m.PixOffset(b.Min.X, b.Min.Y), b.Dx()*8, b.Dy()), Width: 2}
	case *image.NRGBA64:
		return SampleBuffer{Data: rows(m.Pix, m.Stride, m.PixOffset(b.Min.X, b.Min.Y), b.Dx()*8, b.Dy()), Width: 2}
	case *image.Gray:
		return SampleBuffer{Data: rows(m.Pix, m.Stride, m.PixOffset(b.Min.X, b.Min.Y), b.Dx(), b.Dy()), Width: 1}
	case *image.Gray16:
		return SampleBuffer{Data: rows(m.Pix, m.Stride, m.PixOffset(b.Min.X, b.Min.Y), b.Dx()*2, b.Dy()), Width: 2}
	case *image.Alpha:
		return SampleBuffer{Data: rows(m.Pix, m.Stride, m.PixOffset(b.Min.X, b.Min.Y), b.Dx(), b.Dy()), Width: 1}
	case *image.Alpha16:
		return SampleBuffer{Data: rows(m.Pix, m.Stride, m.PixOffset(b.Min.X, b.Min.Y), b.Dx()*2, b.Dy()), Width: 2}
	case *image.CMYK:
		return SampleBuffer{Data: rows(m.Pix, m.Stride, m.PixOffset(b.Min.X, b.Min.Y), b.Dx()*4, b.Dy()), Width: 1}
	case *image.Paletted:
		return SampleBuffer{Data: rows(m.Pix, m.Stride, m.PixOffset(b.Min.X, b.Min.Y), b.Dx(), b.Dy()), Width: 1}
	case *image.YCbCr:
		return SampleBuffer{Data: ycbcrSamples(m), Width: 1}
	}

	converted := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(converted, converted.Bounds(), img, b.Min, draw.Src)
	return SampleBuffer{Data: converted.Pix, Width: 1}
}

func rows(pix []byte, stride int, offset int, rowLength int, height int) []byte {
	if rowLength == stride {
		return pix[offset : offset+rowLength*height]
	}
	out := make([]byte, 0, rowLength*height)
	for y := 0; y < height; y++ {
		start := offset + y*stride
		out = append(out, pix[start:start+rowLength]...)
	}
	return out
}

func ycbcrSamples(m *image.YCbCr) []byte {
	b := m.Bounds()
	out := rows(m.Y, m.YStride, m.YOffset(b.Min.X, b.Min.Y), b.Dx(), b.Dy())
	out = append([]byte(nil), out...)

	full := chromaRect(m.Rect, m.SubsampleRatio)
	sub := chromaRect(b, m.SubsampleRatio)
	offset := (sub.Min.Y-full.Min.Y)*m.CStride + (sub.Min.X - full.Min.X)
	out = append(out, rows(m.Cb, m.CStride, offset, sub.Dx(), sub.Dy())...)
	out = append(out, rows(m.Cr, m.CStride, offset, sub.Dx(), sub.Dy())...)
	return out
}

func chromaRect(r image.Rectangle, ratio image.YCbCrSubsampleRatio) image.Rectangle {
	switch ratio {
	case image.YCbCrSubsampleRatio422:
		return image.Rect(r.Min.X/2, r.Min.Y, (r.Max.X+1)/2, r.Max.Y)
	case image.YCbCrSubsampleRatio420:
		return image.Rect(r.Min.X/2, r.Min.Y/2, (r.Max.X+1)/2, (r.Max.Y+1)/2)
	case image.YCbCrSubsampleRatio440:
		return image.Rect(r.Min.X, r.Min.Y/2, r.Max.X, (r.Max.Y+1)/2)
	case image.YCbCrSubsampleRatio411:
		return image.Rect(r.Min.X/4, r.Min.Y, (r.Max.X+3)/4, r.Max.Y)
	case image.YCbCrSubsampleRatio410:
		return image.Rect(r.Min.X/4, r.Min.Y/2, (r.Max.X+3)/4, (r.Max.Y+1)/2)
	}
	return r
}

// Similarity returns the fraction of equal raw samples of a and b. Images
// whose sample buffers differ in size score 0.0 together with
// ErrSizeMismatch; callers that only need the score may ignore the error.
func Similarity(a image.Image, b image.Image) (float64, error) {
	sa := Samples(a)
	sb := Samples(b)
	if sa.Width != sb.Width || sa.Len() != sb.Len() {
		return 0.0, xerrors.Errorf("%d samples of %d bytes against %d samples of %d bytes: %w", sa.Len(), sa.Width, sb.Len(), sb.Width, ErrSizeMismatch)
	}

	total := sa.Len()
	if total == 0 {
		return 1.0, nil
	}

	matches := 0
	for i := 0; i < len(sa.Data); i += sa.Width {
		if bytes.Equal(sa.Data[i:i+sa.Width], sb.Data[i:i+sb.Width]) {
			matches++
		}
	}
	return float64(matches) / float64(total), nil
}
