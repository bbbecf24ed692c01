package image

import (
	"image"
	"image/draw"
)

const (
	DefaultRegionGap = 10
	outlineThickness = 3
)

// RegionDiff outlines the bounding boxes of differing areas instead of
// individual pixels. Boxes closer than gap pixels are merged.
type RegionDiff struct {
	gap int
}

func NewRegionDiff(gap int) *RegionDiff {
	return &RegionDiff{
		gap: gap,
	}
}

func (r *RegionDiff) Calculate(baseline image.Image, target image.Image) (*DiffResult, error) {
	if err := checkDimensions(baseline, target); err != nil {
		return nil, err
	}

	bounds := baseline.Bounds()
	result := image.NewRGBA(bounds)
	draw.Draw(result, bounds, baseline, bounds.Min, draw.Src)
	for i := 3; i < len(result.Pix); i += 4 {
		result.Pix[i] = 0xff
	}

	regions := r.Regions(baseline, target)
	for _, region := range regions {
		r.outline(result, region.Add(bounds.Min))
	}

	area := 0
	for _, region := range regions {
		area += region.Dx() * region.Dy()
	}

	diffAmount := 0.0
	if total := bounds.Dx() * bounds.Dy(); total > 0 {
		diffAmount = float64(area) / float64(total)
	}

	return &DiffResult{
		Image:      result,
		DiffAmount: diffAmount,
	}, nil
}

// Regions returns disjoint boxes, relative to the top left corner of the
// images, covering every differing pixel.
func (r *RegionDiff) Regions(baseline image.Image, target image.Image) []image.Rectangle {
	width := baseline.Bounds().Dx()
	height := baseline.Bounds().Dy()

	mask := make([]bool, width*height)
	forEachShard(height, func(startY int, endY int) {
		for y := startY; y < endY; y++ {
			for x := 0; x < width; x++ {
				mask[y*width+x] = pixelsDiffer(baseline, target, x, y)
			}
		}
	})

	visited := make([]bool, width*height)
	var boxes []image.Rectangle
	for i, differs := range mask {
		if differs && !visited[i] {
			boxes = append(boxes, r.boundingBox(mask, visited, i%width, i/width, width, height))
		}
	}
	return r.merge(boxes)
}

func (r *RegionDiff) boundingBox(mask []bool, visited []bool, startX int, startY int, width int, height int) image.Rectangle {
	box := image.Rect(startX, startY, startX+1, startY+1)
	queue := []image.Point{{X: startX, Y: startY}}
	visited[startY*width+startX] = true

	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		box = box.Union(image.Rect(p.X, p.Y, p.X+1, p.Y+1))

		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				n := image.Point{X: p.X + dx, Y: p.Y + dy}
				if n.X < 0 || n.X >= width || n.Y < 0 || n.Y >= height {
					continue
				}
				if i := n.Y*width + n.X; mask[i] && !visited[i] {
					visited[i] = true
					queue = append(queue, n)
				}
			}
		}
	}
	return box
}

// merge unions boxes until no two of them are within gap of each other.
func (r *RegionDiff) merge(boxes []image.Rectangle) []image.Rectangle {
	for merged := true; merged; {
		merged = false
		for i := 0; i < len(boxes) && !merged; i++ {
			for j := i + 1; j < len(boxes); j++ {
				if boxes[i].Inset(-r.gap).Overlaps(boxes[j]) {
					boxes[i] = boxes[i].Union(boxes[j])
					boxes = append(boxes[:j], boxes[j+1:]...)
					merged = true
					break
				}
			}
		}
	}
	return boxes
}

func (r *RegionDiff) outline(img *image.RGBA, box image.Rectangle) {
	bounds := img.Bounds()
	for t := 0; t < outlineThickness; t++ {
		frame := box.Inset(-t)
		for x := frame.Min.X; x < frame.Max.X; x++ {
			if p := (image.Point{X: x, Y: frame.Min.Y}); p.In(bounds) {
				img.SetRGBA(p.X, p.Y, Highlight)
			}
			if p := (image.Point{X: x, Y: frame.Max.Y - 1}); p.In(bounds) {
				img.SetRGBA(p.X, p.Y, Highlight)
			}
		}
		for y := frame.Min.Y; y < frame.Max.Y; y++ {
			if p := (image.Point{X: frame.Min.X, Y: y}); p.In(bounds) {
				img.SetRGBA(p.X, p.Y, Highlight)
			}
			if p := (image.Point{X: frame.Max.X - 1, Y: y}); p.In(bounds) {
				img.SetRGBA(p.X, p.Y, Highlight)
			}
		}
	}
}
