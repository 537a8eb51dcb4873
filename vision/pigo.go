package vision

import (
	"math"
	"os"
	"sync"

	"github.com/LdDl/rednose/mot"
	pigo "github.com/esimov/pigo/core"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// PigoConfig holds pigo face detector configuration
type PigoConfig struct {
	CascadePath string
	MinSize     int
	MaxSize     int
	ShiftFactor float64
	ScaleFactor float64
	// Clusters overlapping more than this are merged
	IoUThreshold float64
	// Detections scoring below this are dropped
	QualityThreshold float32
}

// DefaultPigoConfig returns defaults suitable for webcam frames
func DefaultPigoConfig() PigoConfig {
	return PigoConfig{
		CascadePath:      "cascade/facefinder",
		MinSize:          60,
		MaxSize:          1000,
		ShiftFactor:      0.1,
		ScaleFactor:      1.1,
		IoUThreshold:     0.2,
		QualityThreshold: 5.0,
	}
}

// PigoDetector finds face regions with the pure Go pixel intensity comparison detector
type PigoDetector struct {
	classifier *pigo.Pigo
	cfg        PigoConfig
	mu         sync.Mutex
}

// NewPigoDetector unpacks the facefinder cascade
func NewPigoDetector(cfg PigoConfig) (*PigoDetector, error) {
	if err := checkModel(cfg.CascadePath); err != nil {
		return nil, err
	}
	cascade, err := os.ReadFile(cfg.CascadePath)
	if err != nil {
		return nil, errors.Wrap(err, "Can't read facefinder cascade")
	}
	// Unpack the binary file: number of cascade trees, tree depth, threshold and leaf predictions
	classifier, err := pigo.NewPigo().Unpack(cascade)
	if err != nil {
		return nil, errors.Wrap(err, "Can't unpack facefinder cascade")
	}
	return &PigoDetector{
		classifier: classifier,
		cfg:        cfg,
	}, nil
}

// grayParams extracts pigo image parameters from a frame
func grayParams(frame *gocv.Mat) (pigo.ImageParams, error) {
	gray, err := toGray(frame)
	defer gray.Close()
	if err != nil {
		return pigo.ImageParams{}, err
	}
	return pigo.ImageParams{
		Pixels: gray.ToBytes(),
		Rows:   gray.Rows(),
		Cols:   gray.Cols(),
		Dim:    gray.Cols(),
	}, nil
}

// DetectRegions returns face boxes in pixels
func (d *PigoDetector) DetectRegions(frame *gocv.Mat) ([]mot.Rectangle, error) {
	imgParams, err := grayParams(frame)
	if err != nil {
		return nil, err
	}
	cParams := pigo.CascadeParams{
		MinSize:     d.cfg.MinSize,
		MaxSize:     d.cfg.MaxSize,
		ShiftFactor: d.cfg.ShiftFactor,
		ScaleFactor: d.cfg.ScaleFactor,
		ImageParams: imgParams,
	}

	d.mu.Lock()
	dets := d.classifier.RunCascade(cParams, 0.0)
	dets = d.classifier.ClusterDetections(dets, d.cfg.IoUThreshold)
	d.mu.Unlock()

	return pigoRegions(dets, d.cfg.QualityThreshold), nil
}

// pigoRegions converts center/scale detections to boxes
func pigoRegions(dets []pigo.Detection, minQuality float32) []mot.Rectangle {
	regions := make([]mot.Rectangle, 0, len(dets))
	for _, det := range dets {
		if det.Q < minQuality {
			continue
		}
		side := float64(det.Scale)
		regions = append(regions, mot.NewRect(float64(det.Col)-side/2, float64(det.Row)-side/2, side, side))
	}
	return regions
}

// PupilNoseConfig describes pupil localization and how nose geometry follows from the eye line.
// Offsets are fractions of the distance between pupils.
type PupilNoseConfig struct {
	CascadePath string
	Perturbs    int
	// Nose tip below the eye line midpoint
	NoseDrop float64
	// Nostrils below the nose tip
	NostrilDrop float64
	// Nostrils to each side of the nose tip
	NostrilHalfSpan float64
}

// DefaultPupilNoseConfig returns defaults for frontal faces
func DefaultPupilNoseConfig() PupilNoseConfig {
	return PupilNoseConfig{
		CascadePath:     "cascade/puploc",
		Perturbs:        63,
		NoseDrop:        0.62,
		NostrilDrop:     0.10,
		NostrilHalfSpan: 0.30,
	}
}

// PupilNoseLandmarks localizes both pupils inside a face region and derives nose tip
// and nostrils from the eye line, so head roll is followed.
type PupilNoseLandmarks struct {
	puploc *pigo.PuplocCascade
	cfg    PupilNoseConfig
	mu     sync.Mutex
}

// NewPupilNoseLandmarks unpacks the puploc cascade
func NewPupilNoseLandmarks(cfg PupilNoseConfig) (*PupilNoseLandmarks, error) {
	if err := checkModel(cfg.CascadePath); err != nil {
		return nil, err
	}
	cascade, err := os.ReadFile(cfg.CascadePath)
	if err != nil {
		return nil, errors.Wrap(err, "Can't read puploc cascade")
	}
	puploc, err := pigo.NewPuplocCascade().UnpackCascade(cascade)
	if err != nil {
		return nil, errors.Wrap(err, "Can't unpack puploc cascade")
	}
	return &PupilNoseLandmarks{
		puploc: puploc,
		cfg:    cfg,
	}, nil
}

// DetectLandmarks returns ok=false when either pupil is not found
func (l *PupilNoseLandmarks) DetectLandmarks(frame *gocv.Mat, region mot.Rectangle) (mot.NoseLandmarks, bool, error) {
	imgParams, err := grayParams(frame)
	if err != nil {
		return mot.NoseLandmarks{}, false, err
	}
	center := region.Center()
	row, col, scale := center.Y, center.X, region.Width

	l.mu.Lock()
	leftEye := l.puploc.RunDetector(pigo.Puploc{
		Row:      int(row - 0.085*scale),
		Col:      int(col - 0.185*scale),
		Scale:    float32(scale) * 0.4,
		Perturbs: l.cfg.Perturbs,
	}, imgParams, 0.0, false)
	rightEye := l.puploc.RunDetector(pigo.Puploc{
		Row:      int(row - 0.085*scale),
		Col:      int(col + 0.185*scale),
		Scale:    float32(scale) * 0.4,
		Perturbs: l.cfg.Perturbs,
	}, imgParams, 0.0, false)
	l.mu.Unlock()

	if leftEye == nil || rightEye == nil || leftEye.Row <= 0 || leftEye.Col <= 0 || rightEye.Row <= 0 || rightEye.Col <= 0 {
		return mot.NoseLandmarks{}, false, nil
	}
	lm, ok := l.cfg.noseFromEyes(
		mot.Point{X: float64(leftEye.Col), Y: float64(leftEye.Row)},
		mot.Point{X: float64(rightEye.Col), Y: float64(rightEye.Row)},
	)
	return lm, ok, nil
}

// noseFromEyes places nose points relative to the eye line. Image left eye comes first.
func (cfg PupilNoseConfig) noseFromEyes(leftEye, rightEye mot.Point) (mot.NoseLandmarks, bool) {
	dx := rightEye.X - leftEye.X
	dy := rightEye.Y - leftEye.Y
	d := math.Hypot(dx, dy)
	if !(d > 1) {
		return mot.NoseLandmarks{}, false
	}
	// Unit vector along the eye line and its normal pointing down the face
	ux, uy := dx/d, dy/d
	nx, ny := -uy, ux
	mid := mot.Point{X: (leftEye.X + rightEye.X) / 2, Y: (leftEye.Y + rightEye.Y) / 2}
	nose := mot.Point{X: mid.X + nx*cfg.NoseDrop*d, Y: mid.Y + ny*cfg.NoseDrop*d}
	base := mot.Point{X: nose.X + nx*cfg.NostrilDrop*d, Y: nose.Y + ny*cfg.NostrilDrop*d}
	half := cfg.NostrilHalfSpan * d
	return mot.NoseLandmarks{
		Nose:         nose,
		LeftNostril:  mot.Point{X: base.X - ux*half, Y: base.Y - uy*half},
		RightNostril: mot.Point{X: base.X + ux*half, Y: base.Y + uy*half},
	}, true
}
