package mot

import "github.com/pkg/errors"

var (
	// ErrInvalidConfig is returned when tracker parameters are out of range
	ErrInvalidConfig = errors.New("invalid tracker configuration")
	// ErrFlowMismatch is returned when optical flow output does not line up with the submitted batch
	ErrFlowMismatch = errors.New("optical flow output does not match batch")
)
