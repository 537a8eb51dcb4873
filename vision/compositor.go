package vision

import (
	"image"
	"image/color"
	"math"

	"github.com/LdDl/rednose/mot"
	"gocv.io/x/gocv"
)

// CompositorConfig holds marker colors
type CompositorConfig struct {
	Fill         color.RGBA
	Rim          color.RGBA
	Highlight    color.RGBA
	RimThickness int
	DrawTrail    bool
	Trail        color.RGBA
}

// DefaultCompositorConfig returns red nose colors
func DefaultCompositorConfig() CompositorConfig {
	return CompositorConfig{
		Fill:         color.RGBA{R: 220, G: 20, B: 30, A: 255},
		Rim:          color.RGBA{R: 120, G: 0, B: 10, A: 255},
		Highlight:    color.RGBA{R: 255, G: 255, B: 255, A: 255},
		RimThickness: 2,
		DrawTrail:    false,
		Trail:        color.RGBA{R: 0, G: 200, B: 255, A: 255},
	}
}

// NoseCompositor draws a red nose over every track
type NoseCompositor struct {
	cfg CompositorConfig
}

// NewNoseCompositor creates compositor
func NewNoseCompositor(cfg CompositorConfig) *NoseCompositor {
	return &NoseCompositor{cfg: cfg}
}

// Marker is the pixel geometry of one drawn nose
type Marker struct {
	Center          image.Point
	Radius          int
	HighlightCenter image.Point
	HighlightRadius int
}

// MarkerFor computes drawing geometry for a track
func MarkerFor(track mot.TrackSnapshot) Marker {
	r := int(math.Round(track.Radius))
	if r < int(mot.MinRadius) {
		r = int(mot.MinRadius)
	}
	center := track.Nose.ImagePoint()
	offset := int(math.Round(0.30 * float64(r)))
	hr := int(math.Round(0.18 * float64(r)))
	if hr < 2 {
		hr = 2
	}
	return Marker{
		Center:          center,
		Radius:          r,
		HighlightCenter: image.Pt(center.X+offset, center.Y-offset),
		HighlightRadius: hr,
	}
}

// Compose draws tracks in place
func (c *NoseCompositor) Compose(frame *gocv.Mat, tracks []mot.TrackSnapshot) error {
	if frame == nil || frame.Empty() {
		return ErrEmptyFrame
	}
	for _, track := range tracks {
		if !track.Nose.IsFinite() {
			continue
		}
		if c.cfg.DrawTrail {
			for i := 1; i < len(track.Trail); i++ {
				gocv.Line(frame, track.Trail[i-1].ImagePoint(), track.Trail[i].ImagePoint(), c.cfg.Trail, 1)
			}
		}
		m := MarkerFor(track)
		gocv.Circle(frame, m.Center, m.Radius, c.cfg.Fill, -1)
		if c.cfg.RimThickness > 0 {
			gocv.Circle(frame, m.Center, m.Radius, c.cfg.Rim, c.cfg.RimThickness)
		}
		gocv.Circle(frame, m.HighlightCenter, m.HighlightRadius, c.cfg.Highlight, -1)
	}
	return nil
}
