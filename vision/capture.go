package vision

import (
	"context"
	"image"
	"io"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Capture reads frames from a video file or a camera device
type Capture struct {
	capture *gocv.VideoCapture
	mirror  bool
	device  bool
	name    string
}

// OpenFile opens video file
func OpenFile(path string, mirror bool) (*Capture, error) {
	capture, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open video file %s", path)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("Can't open video file %s", path)
	}
	return &Capture{capture: capture, mirror: mirror, name: path}, nil
}

// OpenDevice opens camera by its index
func OpenDevice(id int, mirror bool) (*Capture, error) {
	capture, err := gocv.VideoCaptureDevice(id)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open camera %d", id)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, errors.Errorf("Can't open camera %d", id)
	}
	return &Capture{capture: capture, mirror: mirror, device: true}, nil
}

// Next reads the next frame. A file returns io.EOF when exhausted, a camera returns ErrEmptyFrame on a failed read.
func (c *Capture) Next(ctx context.Context) (*gocv.Mat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	frame := gocv.NewMat()
	if ok := c.capture.Read(&frame); !ok || frame.Empty() {
		frame.Close()
		if c.device {
			return nil, errors.Wrap(ErrEmptyFrame, "camera read failed")
		}
		return nil, io.EOF
	}
	if c.mirror {
		gocv.Flip(frame, &frame, 1)
	}
	return &frame, nil
}

// FrameCount returns number of frames in a video file, 0 for cameras or when unknown
func (c *Capture) FrameCount() int {
	if c.device {
		return 0
	}
	n := int(c.capture.Get(gocv.VideoCaptureFrameCount))
	if n < 0 {
		return 0
	}
	return n
}

// FPS returns reported frame rate, fallback when unknown
func (c *Capture) FPS(fallback float64) float64 {
	fps := c.capture.Get(gocv.VideoCaptureFPS)
	if !(fps > 0) || fps > 240 {
		return fallback
	}
	return fps
}

// Size returns frame size
func (c *Capture) Size() image.Point {
	return image.Pt(int(c.capture.Get(gocv.VideoCaptureFrameWidth)), int(c.capture.Get(gocv.VideoCaptureFrameHeight)))
}

// Close releases the capture
func (c *Capture) Close() error {
	return c.capture.Close()
}
