package vision

import (
	"image"
	"sync"

	"github.com/LdDl/rednose/mot"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// LKFlowConfig holds pyramidal Lucas-Kanade parameters
type LKFlowConfig struct {
	WindowSize      int
	MaxLevel        int
	MaxCount        int
	Epsilon         float64
	MinEigThreshold float64
}

// DefaultLKFlowConfig returns 21x21 window, 3 pyramid levels, 30 iterations / 0.01 epsilon
func DefaultLKFlowConfig() LKFlowConfig {
	return LKFlowConfig{
		WindowSize:      21,
		MaxLevel:        3,
		MaxCount:        30,
		Epsilon:         0.01,
		MinEigThreshold: 1e-4,
	}
}

// LKFlow is sparse optical flow between consecutive frames. It remembers the grayscale
// version of the last frame it was given.
type LKFlow struct {
	cfg      LKFlowConfig
	mu       sync.Mutex
	prevGray gocv.Mat
	hasPrev  bool
}

// NewLKFlow creates optical flow estimator
func NewLKFlow(cfg LKFlowConfig) *LKFlow {
	return &LKFlow{
		cfg:      cfg,
		prevGray: gocv.NewMat(),
	}
}

// Estimate tracks points from the previous frame into frame. The first frame only becomes the reference.
func (f *LKFlow) Estimate(frame *gocv.Mat, points []mot.Point) ([]mot.Point, []bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	gray, err := toGray(frame)
	if err != nil {
		gray.Close()
		return nil, nil, err
	}
	prev := f.prevGray
	hadPrev := f.hasPrev
	f.prevGray = gray
	f.hasPrev = true
	defer prev.Close()

	if len(points) == 0 {
		return []mot.Point{}, []bool{}, nil
	}
	if !hadPrev || prev.Rows() != gray.Rows() || prev.Cols() != gray.Cols() {
		return nil, nil, ErrNoReferenceFrame
	}

	prevPts := gocv.NewMatWithSize(len(points), 2, gocv.MatTypeCV32F)
	defer prevPts.Close()
	for i, pt := range points {
		prevPts.SetFloatAt(i, 0, float32(pt.X))
		prevPts.SetFloatAt(i, 1, float32(pt.Y))
	}
	nextPts := gocv.NewMat()
	defer nextPts.Close()
	status := gocv.NewMat()
	defer status.Close()
	errMat := gocv.NewMat()
	defer errMat.Close()

	criteria := gocv.NewTermCriteria(gocv.Count|gocv.EPS, f.cfg.MaxCount, f.cfg.Epsilon)
	gocv.CalcOpticalFlowPyrLKWithParams(prev, gray, prevPts, nextPts, &status, &errMat,
		image.Pt(f.cfg.WindowSize, f.cfg.WindowSize), f.cfg.MaxLevel, criteria, 0, f.cfg.MinEigThreshold)

	if nextPts.Rows()*nextPts.Cols()*nextPts.Channels() != len(points)*2 || status.Rows()*status.Cols() != len(points) {
		return nil, nil, errors.Wrapf(mot.ErrFlowMismatch, "lk returned %d points and %d flags", nextPts.Rows(), status.Rows())
	}

	next := make([]mot.Point, len(points))
	valid := make([]bool, len(points))
	for i := range points {
		if nextPts.Channels() == 2 {
			vec := nextPts.GetVecfAt(i, 0)
			next[i] = mot.Point{X: float64(vec[0]), Y: float64(vec[1])}
		} else {
			next[i] = mot.Point{X: float64(nextPts.GetFloatAt(i, 0)), Y: float64(nextPts.GetFloatAt(i, 1))}
		}
		valid[i] = status.GetUCharAt(i, 0) == 1
	}
	return next, valid, nil
}

// Reset forgets reference frame, e.g. after a scene cut
func (f *LKFlow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prevGray.Close()
	f.prevGray = gocv.NewMat()
	f.hasPrev = false
}

// Close releases the reference frame
func (f *LKFlow) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hasPrev = false
	return f.prevGray.Close()
}
