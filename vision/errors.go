// Package vision adapts gocv (OpenCV) and pigo to the pipeline collaborator interfaces:
// optical flow, face regions, nose landmarks, capture, drawing and recording.
package vision

import "github.com/pkg/errors"

var (
	// ErrNoReferenceFrame is returned by optical flow when there is no usable previous frame
	ErrNoReferenceFrame = errors.New("no reference frame for optical flow")
	// ErrEmptyFrame is returned for nil or empty frames
	ErrEmptyFrame = errors.New("empty frame")
	// ErrModelNotFound is returned when a model or cascade file does not exist
	ErrModelNotFound = errors.New("model file not found")
)
