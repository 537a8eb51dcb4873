package mot

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// FlowBatch is the ordered set of key points of every track, taken under the tracker guard
// so optical flow can run without holding it. Points are laid out as
// [nose_0, left_0, right_0, nose_1, left_1, right_1, ...].
type FlowBatch struct {
	Points    []Point
	ids       []uuid.UUID
	revisions []uint64
}

// Len returns number of tracks in the batch
func (batch FlowBatch) Len() int {
	return len(batch.ids)
}

// FlowReport summarizes one optical flow integration pass
type FlowReport struct {
	// Tracks moved toward the flow result
	Updated int
	// Tracks with too few valid points, positions held
	Held int
	// Tracks fused or removed since the batch was taken
	Stale int
	// Whole batch was skipped because of a flow failure
	Skipped bool
}

// PrepareFlow snapshots the key points of every track
func (tracker *FusionTracker) PrepareFlow() FlowBatch {
	tracker.mu.Lock()
	defer tracker.mu.Unlock()
	batch := FlowBatch{
		Points:    make([]Point, 0, len(tracker.tracks)*PointsPerTrack),
		ids:       make([]uuid.UUID, len(tracker.tracks)),
		revisions: make([]uint64, len(tracker.tracks)),
	}
	for i, track := range tracker.tracks {
		batch.Points = append(batch.Points, track.nose, track.left, track.right)
		batch.ids[i] = track.id
		batch.revisions[i] = track.revision
	}
	return batch
}

// ApplyFlow integrates optical flow output for a batch returned by PrepareFlow.
// next and valid must be aligned with batch.Points. A track moves only when at least
// MinValidFlowPoints of its points are valid; it then blends all of its points with a
// finite flow result toward that result.
// When flowErr is non-nil or the output is misaligned, no track moves this frame.
// Every track still present counts as having had a flow pass.
func (tracker *FusionTracker) ApplyFlow(batch FlowBatch, next []Point, valid []bool, flowErr error) (FlowReport, error) {
	report := FlowReport{}
	var err error
	switch {
	case flowErr != nil:
		err = errors.Wrap(flowErr, "Optical flow failed")
	case len(next) != len(batch.Points) || len(valid) != len(batch.Points):
		err = errors.Wrapf(ErrFlowMismatch, "expected %d points, got %d points and %d flags", len(batch.Points), len(next), len(valid))
	}

	tracker.mu.Lock()
	defer tracker.mu.Unlock()

	index := make(map[uuid.UUID]*NoseTrack, len(tracker.tracks))
	for _, track := range tracker.tracks {
		index[track.id] = track
	}

	for i, id := range batch.ids {
		track, ok := index[id]
		if !ok {
			report.Stale++
			continue
		}
		if track.state == TrackPending {
			track.state = TrackTracked
		}
		if err != nil {
			continue
		}
		if track.revision != batch.revisions[i] {
			report.Stale++
			continue
		}
		i0 := i * PointsPerTrack
		validCount := 0
		for k := i0; k < i0+PointsPerTrack; k++ {
			if valid[k] && next[k].IsFinite() {
				validCount++
			}
		}
		if validCount < tracker.cfg.MinValidFlowPoints {
			report.Held++
			continue
		}
		// Validity only gates the move; every finite result is blended
		for k, pt := range track.keyPoints() {
			if next[i0+k].IsFinite() {
				*pt = emaPoint(*pt, next[i0+k], tracker.cfg.FlowBlend)
			}
		}
		report.Updated++
	}
	report.Skipped = err != nil
	return report, err
}
