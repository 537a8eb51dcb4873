package pipeline

import (
	"context"

	"github.com/LdDl/rednose/mot"
)

// Frame constrains the pointer type of a frame value. *gocv.Mat satisfies Frame[gocv.Mat].
// Clone must return an independent deep copy: the detection worker owns it and closes it.
type Frame[T any] interface {
	*T
	Clone() T
	Close() error
}

// FrameSource yields frames in order. Next returns io.EOF when the stream is over.
// Every returned frame is owned (and closed) by the caller.
type FrameSource[T any] interface {
	Next(ctx context.Context) (*T, error)
}

// RegionDetector finds face regions (pixel coordinates) in a frame.
type RegionDetector[T any] interface {
	DetectRegions(frame *T) ([]mot.Rectangle, error)
}

// LandmarkDetector extracts nose tip and nostrils for a face region. ok=false means "no landmarks".
type LandmarkDetector[T any] interface {
	DetectLandmarks(frame *T, region mot.Rectangle) (mot.NoseLandmarks, bool, error)
}

// FlowEstimator tracks points from the previous frame it saw into frame.
// next and valid are aligned with points. The estimator keeps the previous frame itself.
type FlowEstimator[T any] interface {
	Estimate(frame *T, points []mot.Point) (next []mot.Point, valid []bool, err error)
}

// Compositor draws tracks over the frame in place
type Compositor[T any] interface {
	Compose(frame *T, tracks []mot.TrackSnapshot) error
}

// Observer receives every frame after composition together with the tracks drawn on it.
// The frame must not be retained after Observe returns.
type Observer[T any] interface {
	Observe(frame *T, index int, tracks []mot.TrackSnapshot) error
}

// ObserverFunc adapts a plain function to Observer
type ObserverFunc[T any] func(frame *T, index int, tracks []mot.TrackSnapshot) error

// Observe calls f
func (f ObserverFunc[T]) Observe(frame *T, index int, tracks []mot.TrackSnapshot) error {
	return f(frame, index, tracks)
}
