package mot

import (
	"time"

	"github.com/pkg/errors"
)

// FusionConfig holds tunable parameters of FusionTracker.
type FusionConfig struct {
	// Max nose-to-nose distance (pixels) for a detection to refresh an existing track. Default 60
	MatchThreshold float64
	// EMA weight toward detected nose/nostril positions. Default 0.4
	DetectBlend float64
	// EMA weight toward optical flow positions. Default 0.8
	FlowBlend float64
	// EMA weight toward detected face width. Default 0.2
	FaceWidthBlend float64
	// EMA weight toward the (deadbanded, slew limited) radius candidate. Default 0.12
	RadiusBlend float64
	// Radius changes smaller than this (pixels) are ignored. Default 1.1
	RadiusDeadband float64
	// Max radius change (pixels) allowed per detection cycle before smoothing. Default 2.0
	RadiusMaxStep float64
	// Track is dropped when it was not refreshed by a detection for longer than this. Default 500ms
	IdleExpiry time.Duration
	// Min number of valid flow points (out of 3) to move a track. Default 2
	MinValidFlowPoints int
	// Also match against Kalman predicted nose position. Default false
	PredictiveMatching bool
	// Time step (seconds) of the nose motion predictor, roughly the detection interval. Default 0.07
	PredictorDT float64
	// Number of fused nose positions kept per track. Default 30
	MaxTrailLen int
	// Marker radius sizing
	Radius RadiusParams
}

// DefaultFusionConfig returns the recommended configuration
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		MatchThreshold:     60.0,
		DetectBlend:        0.4,
		FlowBlend:          0.8,
		FaceWidthBlend:     0.2,
		RadiusBlend:        0.12,
		RadiusDeadband:     1.1,
		RadiusMaxStep:      2.0,
		IdleExpiry:         500 * time.Millisecond,
		MinValidFlowPoints: 2,
		PredictiveMatching: false,
		PredictorDT:        0.07,
		MaxTrailLen:        30,
		Radius:             DefaultRadiusParams(),
	}
}

// Validate checks that every parameter is usable
func (cfg FusionConfig) Validate() error {
	if !(cfg.MatchThreshold > 0) {
		return errors.Wrapf(ErrInvalidConfig, "match threshold must be positive, got %v", cfg.MatchThreshold)
	}
	blends := []struct {
		name  string
		value float64
	}{
		{"detect blend", cfg.DetectBlend},
		{"flow blend", cfg.FlowBlend},
		{"face width blend", cfg.FaceWidthBlend},
		{"radius blend", cfg.RadiusBlend},
	}
	for _, b := range blends {
		if !(b.value > 0 && b.value <= 1) {
			return errors.Wrapf(ErrInvalidConfig, "%s must be in (0, 1], got %v", b.name, b.value)
		}
	}
	if !(cfg.RadiusDeadband >= 0) {
		return errors.Wrapf(ErrInvalidConfig, "radius deadband must be non-negative, got %v", cfg.RadiusDeadband)
	}
	if !(cfg.RadiusMaxStep > 0) {
		return errors.Wrapf(ErrInvalidConfig, "radius max step must be positive, got %v", cfg.RadiusMaxStep)
	}
	if cfg.IdleExpiry <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "idle expiry must be positive, got %s", cfg.IdleExpiry)
	}
	if cfg.MinValidFlowPoints < 1 || cfg.MinValidFlowPoints > PointsPerTrack {
		return errors.Wrapf(ErrInvalidConfig, "min valid flow points must be in [1, %d], got %d", PointsPerTrack, cfg.MinValidFlowPoints)
	}
	if !(cfg.PredictorDT > 0) {
		return errors.Wrapf(ErrInvalidConfig, "predictor dt must be positive, got %v", cfg.PredictorDT)
	}
	if cfg.MaxTrailLen < 0 {
		return errors.Wrapf(ErrInvalidConfig, "max trail length must be non-negative, got %d", cfg.MaxTrailLen)
	}
	r := cfg.Radius
	if !(r.NostrilFactor > 0 && r.MinFaceRatio > 0 && r.MaxFaceRatio > 0 && r.AsymCapRatio > 0 && r.DrawScale > 0) {
		return errors.Wrapf(ErrInvalidConfig, "radius parameters must be positive, got %+v", r)
	}
	return nil
}
