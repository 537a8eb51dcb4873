package mot

import (
	"image"
	"math"
)

// Rectangle is an axis-aligned region in frame coordinates (top-left corner plus size).
type Rectangle struct {
	X      float64
	Y      float64
	Width  float64
	Height float64
}

func NewRect(x, y, width, height float64) Rectangle {
	return Rectangle{
		X:      x,
		Y:      y,
		Width:  width,
		Height: height,
	}
}

// Center returns the geometric center of the rectangle
func (r Rectangle) Center() Point {
	return Point{
		X: r.X + r.Width/2.0,
		Y: r.Y + r.Height/2.0,
	}
}

// Empty reports whether the rectangle has no usable area
func (r Rectangle) Empty() bool {
	return !(r.Width > 0) || !(r.Height > 0)
}

// ImageRect converts rectangle into integer image rectangle
func (r Rectangle) ImageRect() image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.X+r.Width)),
		int(math.Round(r.Y+r.Height)),
	)
}

type Point struct {
	X float64
	Y float64
}

func NewPoint(x, y float64) Point {
	return Point{
		X: x,
		Y: y,
	}
}

// ImagePoint rounds point to the nearest pixel
func (p Point) ImagePoint() image.Point {
	return image.Pt(int(math.Round(p.X)), int(math.Round(p.Y)))
}

// IsFinite reports whether both coordinates are neither NaN nor Inf
func (p Point) IsFinite() bool {
	return isFinite(p.X) && isFinite(p.Y)
}

// DistanceTo returns Euclidean distance between two points
func (p Point) DistanceTo(other Point) float64 {
	return euclideanDistance(p, other)
}

func euclideanDistance(p1, p2 Point) float64 {
	return math.Hypot(p1.X-p2.X, p1.Y-p2.Y)
}
