package mot

import (
	"math"
	"time"

	kalman_filter "github.com/LdDl/kalman-filter"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// PointsPerTrack is the number of key points every track submits to optical flow: nose tip, left and right nostril.
const PointsPerTrack = 3

// NoseTrack is one followed face. It is owned by FusionTracker and never handed out directly:
// consumers receive TrackSnapshot copies.
type NoseTrack struct {
	id            uuid.UUID
	nose          Point
	left          Point
	right         Point
	faceWidthHint float64
	radius        float64
	lastRefresh   time.Time
	state         TrackState
	// Bumped on every detection fusion, lets stale optical flow results be discarded
	revision    uint64
	trail       []Point
	maxTrailLen int
	// Kalman filter over fused nose positions
	predicted Point
	predictor *kalman_filter.Kalman2D
	dt        float64
}

// newNoseTrack creates track straight from the first observation: no smoothing at birth.
func newNoseTrack(candidate DetectionCandidate, now time.Time, cfg FusionConfig) *NoseTrack {
	track := NoseTrack{
		id:          uuid.New(),
		nose:        candidate.Nose,
		left:        candidate.Left,
		right:       candidate.Right,
		radius:      cfg.Radius.Compute(candidate.Nose, candidate.Left, candidate.Right, candidate.FaceWidth),
		lastRefresh: now,
		state:       TrackPending,
		trail:       make([]Point, 0, cfg.MaxTrailLen),
		maxTrailLen: cfg.MaxTrailLen,
		predicted:   candidate.Nose,
		dt:          cfg.PredictorDT,
	}
	if candidate.FaceWidth > 0 {
		track.faceWidthHint = candidate.FaceWidth
	}
	track.resetPredictor()
	track.appendTrail()
	return &track
}

func (track *NoseTrack) resetPredictor() {
	/* Kalman filter props */
	ux := 1.0
	uy := 1.0
	stdDevA := 2.0
	stdDevMx := 0.1
	stdDevMy := 0.1
	track.predictor = kalman_filter.NewKalman2D(track.dt, ux, uy, stdDevA, stdDevMx, stdDevMy, kalman_filter.WithState2D(track.nose.X, track.nose.Y))
	track.predicted = track.nose
}

func (track *NoseTrack) appendTrail() {
	if track.maxTrailLen == 0 {
		return
	}
	track.trail = append(track.trail, track.nose)
	if len(track.trail) > track.maxTrailLen {
		track.trail = track.trail[1:]
	}
}

// predictNextPosition executes Kalman filter's first step but without re-evaluating state vector based on Kalman gain
func (track *NoseTrack) predictNextPosition() {
	track.predictor.Predict()
	stateX, stateY := track.predictor.GetState()
	predicted := Point{X: stateX, Y: stateY}
	if !predicted.IsFinite() {
		track.resetPredictor()
		return
	}
	track.predicted = predicted
}

// matchDistance returns distance from candidate nose to this track
func (track *NoseTrack) matchDistance(nose Point, usePrediction bool) float64 {
	dist := euclideanDistance(track.nose, nose)
	if usePrediction {
		dist = math.Min(dist, euclideanDistance(track.predicted, nose))
	}
	return dist
}

// Update fuses a matched detection into the track: smoothed positions and face width,
// then a radius pass through deadband, slew limit and EMA.
func (track *NoseTrack) Update(candidate DetectionCandidate, now time.Time, cfg FusionConfig) error {
	track.nose = emaPoint(track.nose, candidate.Nose, cfg.DetectBlend)
	track.left = emaPoint(track.left, candidate.Left, cfg.DetectBlend)
	track.right = emaPoint(track.right, candidate.Right, cfg.DetectBlend)

	if candidate.FaceWidth > 0 {
		if track.faceWidthHint > 0 {
			track.faceWidthHint = ema(track.faceWidthHint, candidate.FaceWidth, cfg.FaceWidthBlend)
		} else {
			track.faceWidthHint = candidate.FaceWidth
		}
	}

	prevR := track.radius
	candR := cfg.Radius.Compute(track.nose, track.left, track.right, track.faceWidthHint)
	// Within deadband the stored radius stays exactly as it was
	if math.Abs(candR-prevR) >= cfg.RadiusDeadband {
		candR = clampFloat64(candR, prevR-cfg.RadiusMaxStep, prevR+cfg.RadiusMaxStep)
		track.radius = math.Max(MinRadius, ema(prevR, candR, cfg.RadiusBlend))
	}

	track.lastRefresh = now
	track.revision++
	track.appendTrail()

	// Smooth center via Kalman filter
	err := track.predictor.Update(track.nose.X, track.nose.Y)
	if err != nil {
		track.resetPredictor()
		return errors.Wrapf(err, "Can't update predictor of track %s", track.id.String())
	}
	return nil
}

// keyPoints returns references to the flow-tracked points in batch order
func (track *NoseTrack) keyPoints() [PointsPerTrack]*Point {
	return [PointsPerTrack]*Point{&track.nose, &track.left, &track.right}
}

// idleFor returns time since last detection refresh
func (track *NoseTrack) idleFor(now time.Time) time.Duration {
	return now.Sub(track.lastRefresh)
}

// Snapshot returns immutable copy of the track
func (track *NoseTrack) Snapshot() TrackSnapshot {
	trail := make([]Point, len(track.trail))
	copy(trail, track.trail)
	return TrackSnapshot{
		ID:            track.id,
		Nose:          track.nose,
		Left:          track.left,
		Right:         track.right,
		Radius:        track.radius,
		FaceWidthHint: track.faceWidthHint,
		State:         track.state,
		LastRefresh:   track.lastRefresh,
		Predicted:     track.predicted,
		Trail:         trail,
	}
}

// TrackSnapshot is a value copy of a track taken under the tracker guard. Safe to read concurrently.
type TrackSnapshot struct {
	ID            uuid.UUID
	Nose          Point
	Left          Point
	Right         Point
	Radius        float64
	FaceWidthHint float64
	State         TrackState
	LastRefresh   time.Time
	Predicted     Point
	Trail         []Point
}

// Position returns marker center
func (s TrackSnapshot) Position() Point {
	return s.Nose
}
