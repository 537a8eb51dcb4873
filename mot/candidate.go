package mot

// CandidateSource tells how a detection candidate was produced
type CandidateSource uint8

const (
	// SourceLandmarks means the nose points came from the landmark predictor
	SourceLandmarks CandidateSource = iota
	// SourceFallback means the nose points were estimated from the face region geometry
	SourceFallback
)

func (s CandidateSource) String() string {
	switch s {
	case SourceLandmarks:
		return "landmarks"
	case SourceFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// NoseLandmarks is the landmark predictor output consumed by the tracker
type NoseLandmarks struct {
	Nose         Point
	LeftNostril  Point
	RightNostril Point
}

// DetectionCandidate is a single face observation produced by one detection cycle.
type DetectionCandidate struct {
	Nose      Point
	Left      Point
	Right     Point
	FaceWidth float64
	Source    CandidateSource
}

// EstimateParams controls landmark validation and geometric fallback.
type EstimateParams struct {
	// Accepted nostril distance range as fractions of region width. Default [0.10, 0.32]
	MinNostrilRatio float64
	MaxNostrilRatio float64
	// Fallback nose tip location as fractions of region size. Default (0.50, 0.55)
	NoseX float64
	NoseY float64
	// Fallback half distance between nostrils as a fraction of region width. Default 0.12
	NostrilHalfSpan float64
}

// DefaultEstimateParams returns default validation and fallback ratios
func DefaultEstimateParams() EstimateParams {
	return EstimateParams{
		MinNostrilRatio: 0.10,
		MaxNostrilRatio: 0.32,
		NoseX:           0.50,
		NoseY:           0.55,
		NostrilHalfSpan: 0.12,
	}
}

// Fallback estimates nose geometry from the face region alone. It always succeeds.
func (p EstimateParams) Fallback(region Rectangle) DetectionCandidate {
	nose := Point{
		X: region.X + region.Width*p.NoseX,
		Y: region.Y + region.Height*p.NoseY,
	}
	half := region.Width * p.NostrilHalfSpan
	return DetectionCandidate{
		Nose:      nose,
		Left:      Point{X: nose.X - half, Y: nose.Y},
		Right:     Point{X: nose.X + half, Y: nose.Y},
		FaceWidth: region.Width,
		Source:    SourceFallback,
	}
}

// Valid reports whether landmarks are plausible for the given face region
func (p EstimateParams) Valid(region Rectangle, lm NoseLandmarks) bool {
	if !lm.Nose.IsFinite() || !lm.LeftNostril.IsFinite() || !lm.RightNostril.IsFinite() {
		return false
	}
	d := euclideanDistance(lm.LeftNostril, lm.RightNostril)
	return d >= region.Width*p.MinNostrilRatio && d <= region.Width*p.MaxNostrilRatio
}

// Candidate turns optional landmarks into a candidate. When ok is false or landmarks
// fail validation the geometric fallback is used instead.
func (p EstimateParams) Candidate(region Rectangle, lm NoseLandmarks, ok bool) DetectionCandidate {
	if !ok || !p.Valid(region, lm) {
		return p.Fallback(region)
	}
	return DetectionCandidate{
		Nose:      lm.Nose,
		Left:      lm.LeftNostril,
		Right:     lm.RightNostril,
		FaceWidth: region.Width,
		Source:    SourceLandmarks,
	}
}

// EstimateFromRegion is Fallback with DefaultEstimateParams
func EstimateFromRegion(region Rectangle) DetectionCandidate {
	return DefaultEstimateParams().Fallback(region)
}
