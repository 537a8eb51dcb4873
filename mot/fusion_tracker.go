package mot

import (
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FusionTracker owns the set of active nose tracks. It merges detection candidates into tracks
// (MatchObjects) and optical flow results (PrepareFlow/ApplyFlow), and expires idle tracks.
//
// All methods are safe for concurrent use: the track list is guarded by a single mutex and no
// image processing ever happens while it is held.
type FusionTracker struct {
	mu sync.Mutex
	// Main storage. Order is stable: it defines the order of optical flow batches
	tracks []*NoseTrack
	cfg    FusionConfig
}

// FusionReport summarizes one detection fusion cycle
type FusionReport struct {
	Matched  []uuid.UUID
	Created  []uuid.UUID
	Expired  []uuid.UUID
	Rejected int
}

// NewFusionTrackerDefault creates default instance of FusionTracker
func NewFusionTrackerDefault() *FusionTracker {
	return &FusionTracker{
		tracks: make([]*NoseTrack, 0),
		cfg:    DefaultFusionConfig(),
	}
}

// NewFusionTracker creates new instance of FusionTracker
func NewFusionTracker(cfg FusionConfig) (*FusionTracker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &FusionTracker{
		tracks: make([]*NoseTrack, 0),
		cfg:    cfg,
	}, nil
}

// Config returns tracker parameters
func (tracker *FusionTracker) Config() FusionConfig {
	return tracker.cfg
}

// MatchObjects fuses one detection cycle into the track list. Candidates are processed in order:
// each one refreshes the track with the closest nose when it is closer than the match threshold,
// otherwise it starts a new track. Tracks nobody matched are left to optical flow. Idle tracks
// are expired at the end of the cycle.
//
// The cycle is always applied completely. A non-nil error only reports motion predictor
// failures; affected predictors are re-seeded.
func (tracker *FusionTracker) MatchObjects(candidates []DetectionCandidate, now time.Time) (FusionReport, error) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	report := FusionReport{}
	var firstErr error

	if tracker.cfg.PredictiveMatching {
		for _, track := range tracker.tracks {
			track.predictNextPosition()
		}
	}

	for _, candidate := range candidates {
		if !candidate.Nose.IsFinite() || !candidate.Left.IsFinite() || !candidate.Right.IsFinite() || !isFinite(candidate.FaceWidth) {
			report.Rejected++
			continue
		}
		bestIdx := -1
		minDistance := math.MaxFloat64
		for i, track := range tracker.tracks {
			dist := track.matchDistance(candidate.Nose, tracker.cfg.PredictiveMatching)
			if dist < minDistance {
				minDistance = dist
				bestIdx = i
			}
		}
		if bestIdx != -1 && minDistance < tracker.cfg.MatchThreshold {
			track := tracker.tracks[bestIdx]
			err := track.Update(candidate, now, tracker.cfg)
			if err != nil && firstErr == nil {
				firstErr = err
			}
			report.Matched = append(report.Matched, track.id)
			continue
		}
		// Otherwise register object as a new one
		track := newNoseTrack(candidate, now, tracker.cfg)
		tracker.tracks = append(tracker.tracks, track)
		report.Created = append(report.Created, track.id)
	}

	report.Expired = tracker.expireIdle(now)
	return report, firstErr
}

// ExpireIdle removes tracks that were not refreshed by a detection within the idle expiry window
func (tracker *FusionTracker) ExpireIdle(now time.Time) []uuid.UUID {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	return tracker.expireIdle(now)
}

func (tracker *FusionTracker) expireIdle(now time.Time) []uuid.UUID {
	var expired []uuid.UUID
	kept := tracker.tracks[:0]
	for _, track := range tracker.tracks {
		if track.idleFor(now) > tracker.cfg.IdleExpiry {
			track.state = TrackExpired
			expired = append(expired, track.id)
			continue
		}
		kept = append(kept, track)
	}
	// Drop references to removed tracks
	for i := len(kept); i < len(tracker.tracks); i++ {
		tracker.tracks[i] = nil
	}
	tracker.tracks = kept
	return expired
}

// Tracks returns snapshot of all active tracks in stable order
func (tracker *FusionTracker) Tracks() []TrackSnapshot {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	snapshots := make([]TrackSnapshot, len(tracker.tracks))
	for i, track := range tracker.tracks {
		snapshots[i] = track.Snapshot()
	}
	return snapshots
}

// Track returns snapshot of a single track
func (tracker *FusionTracker) Track(id uuid.UUID) (TrackSnapshot, bool) {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	for _, track := range tracker.tracks {
		if track.id == id {
			return track.Snapshot(), true
		}
	}
	return TrackSnapshot{}, false
}

// Len returns number of active tracks
func (tracker *FusionTracker) Len() int {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	return len(tracker.tracks)
}

// Reset drops every track
func (tracker *FusionTracker) Reset() {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	for _, track := range tracker.tracks {
		track.state = TrackExpired
	}
	tracker.tracks = make([]*NoseTrack, 0)
}
