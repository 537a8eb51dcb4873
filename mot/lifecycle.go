package mot

// TrackState is a stage of the track lifecycle
type TrackState uint8

const (
	// TrackPending is a freshly created track which has not been through optical flow yet
	TrackPending TrackState = iota
	// TrackTracked is a track that went through at least one optical flow pass
	TrackTracked
	// TrackExpired is a track removed after being idle too long. Terminal
	TrackExpired
)

func (s TrackState) String() string {
	switch s {
	case TrackPending:
		return "pending"
	case TrackTracked:
		return "tracked"
	case TrackExpired:
		return "expired"
	default:
		return "unknown"
	}
}
