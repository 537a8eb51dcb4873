package vision

import (
	"image"
	"sync"

	"github.com/LdDl/rednose/mot"
	"gocv.io/x/gocv"
)

// YuNetConfig holds YuNet face detector configuration
type YuNetConfig struct {
	ModelPath      string
	ScoreThreshold float64
	NMSThreshold   float64
	TopK           int
	// Regions narrower than this (pixels) are dropped
	MinFaceWidth float64
}

// DefaultYuNetConfig returns production defaults for YuNet
func DefaultYuNetConfig() YuNetConfig {
	return YuNetConfig{
		ModelPath:      "models/face_detection_yunet_2023mar.onnx",
		ScoreThreshold: 0.6,
		NMSThreshold:   0.3,
		TopK:           5000,
		MinFaceWidth:   24,
	}
}

// YuNetDetector finds face regions with OpenCV's FaceDetectorYN
type YuNetDetector struct {
	detector gocv.FaceDetectorYN
	cfg      YuNetConfig
	mu       sync.Mutex // Protects inference
	size     image.Point
}

// NewYuNet creates YuNet face detector
func NewYuNet(cfg YuNetConfig) (*YuNetDetector, error) {
	if err := checkModel(cfg.ModelPath); err != nil {
		return nil, err
	}
	// Input size is updated per frame
	size := image.Pt(320, 320)
	detector := gocv.NewFaceDetectorYNWithParams(
		cfg.ModelPath,
		"",
		size,
		float32(cfg.ScoreThreshold),
		float32(cfg.NMSThreshold),
		cfg.TopK,
		int(gocv.NetBackendDefault),
		int(gocv.NetTargetCPU),
	)
	return &YuNetDetector{
		detector: detector,
		cfg:      cfg,
		size:     size,
	}, nil
}

// DetectRegions returns face boxes in pixels
func (d *YuNetDetector) DetectRegions(frame *gocv.Mat) ([]mot.Rectangle, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	size := image.Pt(frame.Cols(), frame.Rows())
	if size != d.size {
		d.detector.SetInputSize(size)
		d.size = size
	}

	faces := gocv.NewMat()
	defer faces.Close()
	d.detector.Detect(*frame, &faces)

	regions := make([]mot.Rectangle, 0, faces.Rows())
	for r := 0; r < faces.Rows(); r++ {
		// 0-3: x, y, w, h; 4-13: five landmarks; 14: score
		region := mot.NewRect(
			float64(faces.GetFloatAt(r, 0)),
			float64(faces.GetFloatAt(r, 1)),
			float64(faces.GetFloatAt(r, 2)),
			float64(faces.GetFloatAt(r, 3)),
		)
		if region.Width < d.cfg.MinFaceWidth {
			continue
		}
		regions = append(regions, region)
	}
	return regions, nil
}

// Close releases the detector resources
func (d *YuNetDetector) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.detector.Close()
	return nil
}
