package dto

import (
	"image"
	"math"
)

// Box is an axis-aligned pixel rectangle given by its top-left and bottom-right corners.
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b Box) Width() int  { return b.X2 - b.X1 }
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Empty reports whether the box has no area.
func (b Box) Empty() bool {
	return b.X2 <= b.X1 || b.Y2 <= b.Y1
}

func (b Box) Area() int {
	if b.Empty() {
		return 0
	}
	return b.Width() * b.Height()
}

// Overlaps reports whether the two boxes share any point. Touching edges count.
func (b Box) Overlaps(o Box) bool {
	return !(b.X2 < o.X1 || b.X1 > o.X2 || b.Y2 < o.Y1 || b.Y1 > o.Y2)
}

// IoU returns intersection over union. The small epsilon keeps degenerate boxes finite.
func (b Box) IoU(o Box) float64 {
	xA := max(b.X1, o.X1)
	yA := max(b.Y1, o.Y1)
	xB := min(b.X2, o.X2)
	yB := min(b.Y2, o.Y2)

	inter := float64(max(0, xB-xA) * max(0, yB-yA))
	areaA := float64(b.Width() * b.Height())
	areaB := float64(o.Width() * o.Height())
	return inter / (areaA + areaB - inter + 1e-6)
}

func (b Box) Center() (float64, float64) {
	return float64(b.X1+b.X2) / 2, float64(b.Y1+b.Y2) / 2
}

// CenterDistance is the euclidean distance between the two box centres.
func (b Box) CenterDistance(o Box) float64 {
	ax, ay := b.Center()
	bx, by := o.Center()
	return math.Hypot(ax-bx, ay-by)
}

// Pad grows the box on every side by fx of its width and fy of its height.
func (b Box) Pad(fx, fy float64) Box {
	px := int(float64(b.Width()) * fx)
	py := int(float64(b.Height()) * fy)
	return Box{X1: b.X1 - px, Y1: b.Y1 - py, X2: b.X2 + px, Y2: b.Y2 + py}
}

// Clamp limits the box to a w x h frame.
func (b Box) Clamp(w, h int) Box {
	return Box{
		X1: min(max(b.X1, 0), w),
		Y1: min(max(b.Y1, 0), h),
		X2: min(max(b.X2, 0), w),
		Y2: min(max(b.Y2, 0), h),
	}
}

func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

func BoxFromRect(r image.Rectangle) Box {
	return Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}
