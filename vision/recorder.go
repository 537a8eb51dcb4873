package vision

import (
	"image"
	"path/filepath"
	"strings"
	"sync"

	"github.com/LdDl/rednose/mot"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// Recorder writes composed frames to a video file. Frames of a different size are resized
// to the size the file was opened with.
type Recorder struct {
	writer  *gocv.VideoWriter
	size    image.Point
	path    string
	mu      sync.Mutex
	resized gocv.Mat
	written int
}

// CodecFor picks fourcc by file extension: MJPG for .avi, mp4v otherwise
func CodecFor(path string) string {
	if strings.EqualFold(filepath.Ext(path), ".avi") {
		return "MJPG"
	}
	return "mp4v"
}

// NewRecorder opens video file for writing
func NewRecorder(path string, fps float64, size image.Point) (*Recorder, error) {
	if size.X <= 0 || size.Y <= 0 {
		return nil, errors.Errorf("invalid video size %v", size)
	}
	writer, err := gocv.VideoWriterFile(path, CodecFor(path), fps, size.X, size.Y, true)
	if err != nil {
		return nil, errors.Wrapf(err, "Can't open video writer %s", path)
	}
	if !writer.IsOpened() {
		writer.Close()
		return nil, errors.Errorf("Can't open video writer %s", path)
	}
	return &Recorder{
		writer:  writer,
		size:    size,
		path:    path,
		resized: gocv.NewMat(),
	}, nil
}

// Observe appends frame to the video
func (r *Recorder) Observe(frame *gocv.Mat, index int, tracks []mot.TrackSnapshot) error {
	if frame == nil || frame.Empty() {
		return ErrEmptyFrame
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := *frame
	if frame.Cols() != r.size.X || frame.Rows() != r.size.Y {
		gocv.Resize(*frame, &r.resized, r.size, 0, 0, gocv.InterpolationLinear)
		out = r.resized
	}
	if err := r.writer.Write(out); err != nil {
		return errors.Wrapf(err, "Can't write frame %d", index)
	}
	r.written++
	return nil
}

// Written returns number of frames written so far
func (r *Recorder) Written() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.written
}

// Close finalizes the file
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resized.Close()
	return r.writer.Close()
}
