package pipeline

import (
	"log/slog"

	"github.com/LdDl/rednose/mot"
	"github.com/pkg/errors"
)

// DetectionCycle turns a frame into detection candidates: regions first, then landmarks
// for each region with geometric fallback whenever landmarks are missing or implausible.
// Detector failures never escape: a failed region pass yields no candidates, a failed
// landmark pass yields the fallback for that region.
type DetectionCycle[T any] struct {
	regions   RegionDetector[T]
	landmarks LandmarkDetector[T]
	estimate  mot.EstimateParams
	logger    *slog.Logger
}

// CycleStats counts what a detection cycle produced
type CycleStats struct {
	Regions   int
	Landmarks int
	Fallbacks int
	Skipped   int
	// Region detector failed: no candidates at all
	Failed bool
}

// NewDetectionCycle creates detection cycle. landmarks may be nil: every region then uses the fallback.
func NewDetectionCycle[T any](regions RegionDetector[T], landmarks LandmarkDetector[T], estimate mot.EstimateParams, logger *slog.Logger) *DetectionCycle[T] {
	if logger == nil {
		logger = slog.Default()
	}
	return &DetectionCycle[T]{
		regions:   regions,
		landmarks: landmarks,
		estimate:  estimate,
		logger:    logger,
	}
}

// Candidates runs the cycle over frame. Every non-empty region yields exactly one candidate.
func (cycle *DetectionCycle[T]) Candidates(frame *T) ([]mot.DetectionCandidate, CycleStats) {
	stats := CycleStats{}
	regions, err := cycle.detectRegions(frame)
	if err != nil {
		cycle.logger.Warn("region detection failed", "err", err)
		stats.Failed = true
		return nil, stats
	}
	stats.Regions = len(regions)
	candidates := make([]mot.DetectionCandidate, 0, len(regions))
	for _, region := range regions {
		if region.Empty() {
			stats.Skipped++
			continue
		}
		lm, ok, err := cycle.detectLandmarks(frame, region)
		if err != nil {
			cycle.logger.Debug("landmark detection failed, using fallback", "err", err)
			ok = false
		}
		candidate := cycle.estimate.Candidate(region, lm, ok)
		if candidate.Source == mot.SourceLandmarks {
			stats.Landmarks++
		} else {
			stats.Fallbacks++
		}
		candidates = append(candidates, candidate)
	}
	return candidates, stats
}

func (cycle *DetectionCycle[T]) detectRegions(frame *T) (regions []mot.Rectangle, err error) {
	if cycle.regions == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			regions = nil
			err = errors.Errorf("region detector panic: %v", r)
		}
	}()
	return cycle.regions.DetectRegions(frame)
}

func (cycle *DetectionCycle[T]) detectLandmarks(frame *T, region mot.Rectangle) (lm mot.NoseLandmarks, ok bool, err error) {
	if cycle.landmarks == nil {
		return mot.NoseLandmarks{}, false, nil
	}
	defer func() {
		if r := recover(); r != nil {
			lm, ok = mot.NoseLandmarks{}, false
			err = errors.Errorf("landmark detector panic: %v", r)
		}
	}()
	return cycle.landmarks.DetectLandmarks(frame, region)
}
