package vision

import (
	"github.com/LdDl/rednose/mot"
	"github.com/LdDl/rednose/pipeline"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// AnnotatePhoto runs one detection cycle over a still image and draws a nose on every face.
// There is no history to smooth with: every radius comes straight from the stabilizer with
// the region width as face width hint. Returned snapshots are the drawn markers.
func AnnotatePhoto(img *gocv.Mat, cycle *pipeline.DetectionCycle[gocv.Mat], radius mot.RadiusParams, compositor pipeline.Compositor[gocv.Mat]) ([]mot.TrackSnapshot, error) {
	if img == nil || img.Empty() {
		return nil, ErrEmptyFrame
	}
	candidates, stats := cycle.Candidates(img)
	if stats.Failed {
		return nil, errors.New("face detection failed")
	}
	markers := make([]mot.TrackSnapshot, 0, len(candidates))
	for _, candidate := range candidates {
		markers = append(markers, mot.TrackSnapshot{
			ID:            uuid.New(),
			Nose:          candidate.Nose,
			Left:          candidate.Left,
			Right:         candidate.Right,
			Radius:        radius.Compute(candidate.Nose, candidate.Left, candidate.Right, candidate.FaceWidth),
			FaceWidthHint: candidate.FaceWidth,
			State:         mot.TrackTracked,
			Predicted:     candidate.Nose,
		})
	}
	if compositor != nil {
		if err := compositor.Compose(img, markers); err != nil {
			return markers, errors.Wrap(err, "Can't draw markers")
		}
	}
	return markers, nil
}

// AnnotatePhotoFile reads image from inPath, annotates it and writes result to outPath
func AnnotatePhotoFile(inPath, outPath string, cycle *pipeline.DetectionCycle[gocv.Mat], radius mot.RadiusParams, compositor pipeline.Compositor[gocv.Mat]) ([]mot.TrackSnapshot, error) {
	img := gocv.IMRead(inPath, gocv.IMReadColor)
	defer img.Close()
	if img.Empty() {
		return nil, errors.Wrapf(ErrEmptyFrame, "Can't read image %s", inPath)
	}
	markers, err := AnnotatePhoto(&img, cycle, radius, compositor)
	if err != nil {
		return markers, err
	}
	if ok := gocv.IMWrite(outPath, img); !ok {
		return markers, errors.Errorf("Can't write image %s", outPath)
	}
	return markers, nil
}
