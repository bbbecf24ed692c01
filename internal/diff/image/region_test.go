package image

import (
	"image"
	"image/color"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestRegionDiff_Calculate(t *testing.T) {
	rd := NewRegionDiff(DefaultRegionGap)

	t.Run("NoDifference", func(t *testing.T) {
		result, err := rd.Calculate(createTestImage(100, 100, color.White), createTestImage(100, 100, color.White))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.DiffAmount != 0.0 {
			t.Errorf("Expected DiffAmount to be 0.0, got %f", result.DiffAmount)
		}
	})

	t.Run("SingleRegion", func(t *testing.T) {
		img1 := createTestImage(100, 100, color.White)
		img2 := createTestImage(100, 100, color.White)
		for y := 20; y < 30; y++ {
			for x := 40; x < 60; x++ {
				img2.Set(x, y, color.Black)
			}
		}

		result, err := rd.Calculate(img1, img2)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := 200.0 / 10000.0; result.DiffAmount != want {
			t.Errorf("Expected DiffAmount to be %f, got %f", want, result.DiffAmount)
		}
		if got := result.Image.(*image.RGBA).RGBAAt(40, 20); got != Highlight {
			t.Errorf("Expected the region corner to be outlined, got %v", got)
		}
		if got := result.Image.(*image.RGBA).RGBAAt(50, 25); got != (color.RGBA{R: 255, G: 255, B: 255, A: 255}) {
			t.Errorf("Expected the region interior to keep the baseline, got %v", got)
		}
	})
}

func TestRegionDiff_Regions(t *testing.T) {
	img1 := createTestImage(100, 100, color.White)
	img2 := createTestImage(100, 100, color.White)
	// Two blobs close enough to merge and one far away.
	img2.Set(10, 10, color.Black)
	img2.Set(15, 12, color.Black)
	img2.Set(80, 80, color.Black)
	img2.Set(81, 81, color.Black)

	got := NewRegionDiff(DefaultRegionGap).Regions(img1, img2)
	want := []image.Rectangle{
		image.Rect(10, 10, 16, 13),
		image.Rect(80, 80, 82, 82),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}

	got = NewRegionDiff(0).Regions(img1, img2)
	want = []image.Rectangle{
		image.Rect(10, 10, 11, 11),
		image.Rect(15, 12, 16, 13),
		image.Rect(80, 80, 82, 82),
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
