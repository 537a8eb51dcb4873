package mot

// MinRadius is the smallest marker radius ever produced (pixels)
const MinRadius = 3.0

// RadiusParams describes how marker radius is derived from nose geometry.
type RadiusParams struct {
	// Radius as a fraction of the nostril-to-nostril distance. Default 0.75
	NostrilFactor float64
	// Lower bound as a fraction of face width. Default 0.05
	MinFaceRatio float64
	// Upper bound as a fraction of face width. Default 0.16
	MaxFaceRatio float64
	// Caps the farther nostril to this multiple of the nearer one. Default 1.70
	AsymCapRatio float64
	// Multiplier applied to the asymmetry cap. Default 1.20
	DrawScale float64
}

// DefaultRadiusParams returns the default radius sizing
func DefaultRadiusParams() RadiusParams {
	return RadiusParams{
		NostrilFactor: 0.75,
		MinFaceRatio:  0.05,
		MaxFaceRatio:  0.16,
		AsymCapRatio:  1.70,
		DrawScale:     1.20,
	}
}

// ComputeRadius evaluates DefaultRadiusParams. See RadiusParams.Compute
func ComputeRadius(center, left, right Point, faceWidthHint float64) float64 {
	return DefaultRadiusParams().Compute(center, left, right, faceWidthHint)
}

// Compute returns the target marker radius for the nose tip (center) and both nostrils.
// A non-positive faceWidthHint means "no hint": the face-width clamp is skipped.
// The result is never below MinRadius.
func (p RadiusParams) Compute(center, left, right Point, faceWidthHint float64) float64 {
	r := p.NostrilFactor * euclideanDistance(left, right)

	if faceWidthHint > 0 {
		minR := p.MinFaceRatio * faceWidthHint
		maxR := p.MaxFaceRatio * faceWidthHint
		if maxR < minR+1 {
			maxR = minR + 1
		}
		r = clampFloat64(r, minR, maxR)
	}

	// Turned head: one nostril drifts away from the tip
	dL := euclideanDistance(center, left)
	dR := euclideanDistance(center, right)
	asymCap := minFloat64(maxFloat64(dL, dR), minFloat64(dL, dR)*p.AsymCapRatio)

	r = minFloat64(r, asymCap*p.DrawScale)
	if !(r >= MinRadius) {
		return MinRadius
	}
	return r
}
