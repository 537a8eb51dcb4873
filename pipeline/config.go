package pipeline

import (
	"time"

	"github.com/LdDl/rednose/mot"
	"github.com/pkg/errors"
)

// Config holds frame loop parameters
type Config struct {
	// Min time between two detection cycle starts. Default 70ms
	DetectInterval time.Duration
	// Landmark validation and fallback ratios
	Estimate mot.EstimateParams
}

// DefaultConfig returns the recommended configuration
func DefaultConfig() Config {
	return Config{
		DetectInterval: 70 * time.Millisecond,
		Estimate:       mot.DefaultEstimateParams(),
	}
}

// Validate checks that every parameter is usable
func (cfg Config) Validate() error {
	if cfg.DetectInterval < 0 {
		return errors.Wrapf(mot.ErrInvalidConfig, "detect interval must be non-negative, got %s", cfg.DetectInterval)
	}
	e := cfg.Estimate
	if !(e.MinNostrilRatio > 0 && e.MaxNostrilRatio >= e.MinNostrilRatio) {
		return errors.Wrapf(mot.ErrInvalidConfig, "nostril ratio range [%v, %v] is invalid", e.MinNostrilRatio, e.MaxNostrilRatio)
	}
	if !(e.NoseX >= 0 && e.NoseX <= 1 && e.NoseY >= 0 && e.NoseY <= 1) {
		return errors.Wrapf(mot.ErrInvalidConfig, "fallback nose position (%v, %v) must be inside the region", e.NoseX, e.NoseY)
	}
	if !(e.NostrilHalfSpan > 0 && e.NostrilHalfSpan <= 0.5) {
		return errors.Wrapf(mot.ErrInvalidConfig, "fallback nostril half span must be in (0, 0.5], got %v", e.NostrilHalfSpan)
	}
	return nil
}
