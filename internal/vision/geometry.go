package vision

import "math"

// Point is a keypoint in normalized [0,1] image coordinates.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Pixel converts a normalized point to pixel space by truncation.
func (p Point) Pixel(w, h int) (int, int) {
	return int(p.X * float64(w)), int(p.Y * float64(h))
}

// BoundingBox is an integer pixel rectangle.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ClampBox intersects b with the frame so that 0 <= x, 0 <= y,
// x+w <= frameW and y+h <= frameH. Disjoint boxes collapse to zero size.
func ClampBox(b BoundingBox, frameW, frameH int) BoundingBox {
	x1 := max(b.X, 0)
	y1 := max(b.Y, 0)
	x2 := min(b.X+max(b.Width, 0), frameW)
	y2 := min(b.Y+max(b.Height, 0), frameH)

	x1 = min(x1, frameW)
	y1 = min(y1, frameH)

	return BoundingBox{
		X:      x1,
		Y:      y1,
		Width:  max(x2-x1, 0),
		Height: max(y2-y1, 0),
	}
}

// Pad grows the box by frac of its width/height on each side and reclamps.
func (b BoundingBox) Pad(frac float64, frameW, frameH int) BoundingBox {
	if frac <= 0 {
		return ClampBox(b, frameW, frameH)
	}
	px := int(frac * float64(b.Width))
	py := int(frac * float64(b.Height))

	x := max(0, b.X-px)
	y := max(0, b.Y-py)
	w := min(frameW-x, b.Width+2*px)
	h := min(frameH-y, b.Height+2*py)

	return ClampBox(BoundingBox{X: x, Y: y, Width: w, Height: h}, frameW, frameH)
}

func (b BoundingBox) Empty() bool {
	return b.Width <= 0 || b.Height <= 0
}

func (b BoundingBox) Area() int {
	if b.Empty() {
		return 0
	}
	return b.Width * b.Height
}

// Center returns the box center in pixels.
func (b BoundingBox) Center() (float64, float64) {
	return float64(b.X) + float64(b.Width)/2, float64(b.Y) + float64(b.Height)/2
}

// CenterDistance is the Euclidean distance between two box centers.
func CenterDistance(a, b BoundingBox) float64 {
	ax, ay := a.Center()
	bx, by := b.Center()
	return math.Hypot(ax-bx, ay-by)
}
