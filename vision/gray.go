package vision

import (
	"os"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// toGray converts BGR, BGRA or gray frame to a new single channel Mat. Caller closes it.
func toGray(frame *gocv.Mat) (gocv.Mat, error) {
	if frame == nil || frame.Empty() {
		return gocv.NewMat(), ErrEmptyFrame
	}
	gray := gocv.NewMat()
	switch frame.Channels() {
	case 1:
		frame.CopyTo(&gray)
	case 4:
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRAToGray)
	default:
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	}
	return gray, nil
}

func checkModel(path string) error {
	if path == "" {
		return errors.Wrap(ErrModelNotFound, "empty path")
	}
	if _, err := os.Stat(path); err != nil {
		return errors.Wrapf(ErrModelNotFound, "%s", path)
	}
	return nil
}
