package mot

import (
	"image"
	"math"
	"testing"
)

const (
	eps = 0.00001
)

func TestEuclideanDistance(t *testing.T) {
	p1 := Point{X: 341, Y: 264}
	p2 := Point{X: 421, Y: 427}
	correnctAnswer := 181.57367
	answer := euclideanDistance(p1, p2)
	if math.Abs(answer-correnctAnswer) > eps {
		t.Errorf("Wrong answer: %v, correct answer: %v", answer, correnctAnswer)
	}
}

func TestRectangleCenter(t *testing.T) {
	rect := NewRect(10, 20, 30, 40)
	center := rect.Center()
	if center != (Point{X: 25, Y: 40}) {
		t.Errorf("Wrong center: %v", center)
	}
	if rect.Empty() {
		t.Error("Rectangle with positive size should not be empty")
	}
	if !NewRect(10, 20, 0, 40).Empty() {
		t.Error("Rectangle with zero width should be empty")
	}
	if !NewRect(0, 0, math.NaN(), 10).Empty() {
		t.Error("Rectangle with NaN width should be empty")
	}
}

func TestRectangleImageConversion(t *testing.T) {
	src := image.Rect(5, 6, 105, 126)
	rect := NewRect(5, 6, 100, 120)
	if rect.Width != 100 || rect.Height != 120 {
		t.Errorf("Wrong size: %v", rect)
	}
	if rect.ImageRect() != src {
		t.Errorf("Round trip mismatch: %v vs %v", rect.ImageRect(), src)
	}
}

func TestPointFinite(t *testing.T) {
	if !NewPoint(1, 2).IsFinite() {
		t.Error("Regular point should be finite")
	}
	if NewPoint(math.Inf(1), 2).IsFinite() {
		t.Error("Inf point should not be finite")
	}
	if NewPoint(1, math.NaN()).IsFinite() {
		t.Error("NaN point should not be finite")
	}
	if NewPoint(10.4, 20.6).ImagePoint() != image.Pt(10, 21) {
		t.Error("Wrong rounding")
	}
}

func TestEMA(t *testing.T) {
	got := emaPoint(Point{X: 0, Y: 10}, Point{X: 10, Y: 0}, 0.4)
	if math.Abs(got.X-4) > eps || math.Abs(got.Y-6) > eps {
		t.Errorf("Wrong blend: %v", got)
	}
	if clampFloat64(15, 0, 10) != 10 || clampFloat64(-1, 0, 10) != 0 || clampFloat64(5, 0, 10) != 5 {
		t.Error("Wrong clamp")
	}
}

func TestEuclideanDistanceLargeCoordinates(t *testing.T) {
	p1 := NewPoint(1e200, 0)
	p2 := NewPoint(-1e200, 0)
	dist := euclideanDistance(p1, p2)
	if math.IsInf(dist, 0) || math.Abs(dist/2e200-1) > eps {
		t.Errorf("Wrong answer: %v, correct answer: %v", dist, 2e200)
	}
	radius := ComputeRadius(NewPoint(0, 0), p2, p1, 0)
	if math.IsInf(radius, 0) || math.IsNaN(radius) {
		t.Errorf("Radius must stay finite for finite points, got %v", radius)
	}
}
