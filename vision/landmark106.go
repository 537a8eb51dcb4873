package vision

import (
	"image"
	"sync"

	"github.com/LdDl/rednose/mot"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Landmark106Config holds configuration of the 106-point landmark model (insightface 2d106det layout)
type Landmark106Config struct {
	ModelPath string
	InputSize int
	InputMean float64
	InputStd  float64
	// Face crop side as a multiple of the larger region side
	CropScale float64
	// Indices of the nose tip and nostril wings in model output
	NoseIndex         int
	LeftNostrilIndex  int
	RightNostrilIndex int
}

// DefaultLandmark106Config returns defaults for 2d106det.onnx
func DefaultLandmark106Config() Landmark106Config {
	return Landmark106Config{
		ModelPath:         "models/2d106det.onnx",
		InputSize:         192,
		InputMean:         127.5,
		InputStd:          128.0,
		CropScale:         1.5,
		NoseIndex:         86,
		LeftNostrilIndex:  82,
		RightNostrilIndex: 83,
	}
}

// Landmark106 predicts nose points with a 106-point face alignment network run through OpenCV dnn
type Landmark106 struct {
	net gocv.Net
	cfg Landmark106Config
	mu  sync.Mutex
}

const landmark106Points = 106

// NewLandmark106 loads ONNX landmark model
func NewLandmark106(cfg Landmark106Config) (*Landmark106, error) {
	if err := checkModel(cfg.ModelPath); err != nil {
		return nil, err
	}
	for _, idx := range []int{cfg.NoseIndex, cfg.LeftNostrilIndex, cfg.RightNostrilIndex} {
		if idx < 0 || idx >= landmark106Points {
			return nil, errors.Errorf("landmark index %d out of range", idx)
		}
	}
	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, errors.Errorf("Can't load landmark model %s", cfg.ModelPath)
	}
	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)
	return &Landmark106{
		net: net,
		cfg: cfg,
	}, nil
}

// DetectLandmarks crops the region, runs the model and maps nose points back into frame coordinates
func (l *Landmark106) DetectLandmarks(frame *gocv.Mat, region mot.Rectangle) (mot.NoseLandmarks, bool, error) {
	if frame == nil || frame.Empty() {
		return mot.NoseLandmarks{}, false, ErrEmptyFrame
	}
	center := region.Center()
	maxDim := region.Width
	if region.Height > maxDim {
		maxDim = region.Height
	}
	if !(maxDim > 0) {
		return mot.NoseLandmarks{}, false, nil
	}
	size := float64(l.cfg.InputSize)
	scale := size / (maxDim * l.cfg.CropScale)

	// Scale and center, no rotation
	m := gocv.NewMatWithSize(2, 3, gocv.MatTypeCV64F)
	defer m.Close()
	m.SetDoubleAt(0, 0, scale)
	m.SetDoubleAt(0, 1, 0)
	m.SetDoubleAt(0, 2, size/2-center.X*scale)
	m.SetDoubleAt(1, 0, 0)
	m.SetDoubleAt(1, 1, scale)
	m.SetDoubleAt(1, 2, size/2-center.Y*scale)

	aligned := gocv.NewMat()
	defer aligned.Close()
	gocv.WarpAffine(*frame, &aligned, m, image.Pt(l.cfg.InputSize, l.cfg.InputSize))

	// (x - mean) / std, BGR to RGB
	blob := gocv.BlobFromImage(aligned, 1.0/l.cfg.InputStd, image.Pt(l.cfg.InputSize, l.cfg.InputSize),
		gocv.NewScalar(l.cfg.InputMean, l.cfg.InputMean, l.cfg.InputMean, 0), true, false)
	defer blob.Close()

	l.mu.Lock()
	l.net.SetInput(blob, "")
	output := l.net.Forward("")
	l.mu.Unlock()
	defer output.Close()

	if output.Total() < landmark106Points*2 {
		return mot.NoseLandmarks{}, false, errors.Errorf("unexpected landmark output size %d", output.Total())
	}
	values, err := output.DataPtrFloat32()
	if err != nil {
		return mot.NoseLandmarks{}, false, errors.Wrap(err, "Can't read landmark output")
	}

	point := func(i int) mot.Point {
		// Output is in [-1, 1] relative to the crop
		x := (float64(values[i*2]) + 1) * size / 2
		y := (float64(values[i*2+1]) + 1) * size / 2
		return mot.Point{
			X: (x-size/2)/scale + center.X,
			Y: (y-size/2)/scale + center.Y,
		}
	}
	return mot.NoseLandmarks{
		Nose:         point(l.cfg.NoseIndex),
		LeftNostril:  point(l.cfg.LeftNostrilIndex),
		RightNostril: point(l.cfg.RightNostrilIndex),
	}, true, nil
}

// Close releases the network
func (l *Landmark106) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.net.Close()
}
