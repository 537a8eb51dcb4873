package pipeline

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/LdDl/rednose/internal/log"
	"github.com/LdDl/rednose/mot"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type frameCounter struct {
	opened atomic.Int32
	closed atomic.Int32
}

type testFrame struct {
	id      int
	counter *frameCounter
}

func (f *testFrame) Clone() testFrame {
	f.counter.opened.Add(1)
	return testFrame{id: f.id, counter: f.counter}
}

func (f *testFrame) Close() error {
	f.counter.closed.Add(1)
	return nil
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// testSource emits n frames, advancing the clock by step before each one
type testSource struct {
	n       int
	next    int
	step    time.Duration
	clock   *fakeClock
	counter *frameCounter
	onNext  func(index int)
	err     error
	errAt   int
}

func (s *testSource) Next(ctx context.Context) (*testFrame, error) {
	if s.err != nil && s.next == s.errAt {
		return nil, s.err
	}
	if s.next >= s.n {
		if s.onNext != nil {
			s.onNext(s.next)
		}
		return nil, io.EOF
	}
	if s.onNext != nil {
		s.onNext(s.next)
	}
	s.clock.Advance(s.step)
	s.counter.opened.Add(1)
	frame := &testFrame{id: s.next, counter: s.counter}
	s.next++
	return frame, nil
}

type regionFunc func(frame *testFrame) ([]mot.Rectangle, error)

func (f regionFunc) DetectRegions(frame *testFrame) ([]mot.Rectangle, error) {
	return f(frame)
}

type landmarkFunc func(frame *testFrame, region mot.Rectangle) (mot.NoseLandmarks, bool, error)

func (f landmarkFunc) DetectLandmarks(frame *testFrame, region mot.Rectangle) (mot.NoseLandmarks, bool, error) {
	return f(frame, region)
}

type flowFunc func(frame *testFrame, points []mot.Point) ([]mot.Point, []bool, error)

func (f flowFunc) Estimate(frame *testFrame, points []mot.Point) ([]mot.Point, []bool, error) {
	return f(frame, points)
}

type composeFunc func(frame *testFrame, tracks []mot.TrackSnapshot) error

func (f composeFunc) Compose(frame *testFrame, tracks []mot.TrackSnapshot) error {
	return f(frame, tracks)
}

func oneFace(frame *testFrame) ([]mot.Rectangle, error) {
	return []mot.Rectangle{mot.NewRect(100, 100, 200, 200)}, nil
}

func newTestPipeline(t *testing.T, source *testSource, components Components[testFrame]) (*Pipeline[testFrame, *testFrame], *mot.FusionTracker) {
	t.Helper()
	tracker := mot.NewFusionTrackerDefault()
	components.Source = source
	p, err := New[testFrame](tracker, components, DefaultConfig(), log.Discard())
	require.NoError(t, err)
	p.SetClock(source.clock.Now)
	return p, tracker
}

func newTestSource(n int, step time.Duration) *testSource {
	return &testSource{
		n:       n,
		step:    step,
		clock:   &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		counter: &frameCounter{},
	}
}

func TestNewValidation(t *testing.T) {
	_, err := New[testFrame](mot.NewFusionTrackerDefault(), Components[testFrame]{}, DefaultConfig(), nil)
	assert.Equal(t, ErrNoSource, err)

	cfg := DefaultConfig()
	cfg.Estimate.MaxNostrilRatio = 0.01
	_, err = New[testFrame](mot.NewFusionTrackerDefault(), Components[testFrame]{Source: newTestSource(1, 0)}, cfg, nil)
	assert.Equal(t, mot.ErrInvalidConfig, errors.Cause(err))
}

func TestRunReleasesEveryFrame(t *testing.T) {
	source := newTestSource(40, 10*time.Millisecond)
	var composed atomic.Int32
	var tracker *mot.FusionTracker
	// Frame 1 is held back until the cycle started on frame 0 has merged
	source.onNext = func(index int) {
		if index == 1 {
			require.Eventually(t, func() bool { return tracker.Len() > 0 }, 2*time.Second, time.Millisecond)
		}
	}
	p, tracker := newTestPipeline(t, source, Components[testFrame]{
		Regions: regionFunc(oneFace),
		Compositor: composeFunc(func(frame *testFrame, tracks []mot.TrackSnapshot) error {
			composed.Add(1)
			return nil
		}),
	})
	require.NoError(t, p.Run(context.Background()))

	assert.Equal(t, source.counter.opened.Load(), source.counter.closed.Load(), "every frame and clone must be released")
	assert.EqualValues(t, 40, p.Stats().Frames)
	assert.EqualValues(t, 40, composed.Load())
	assert.GreaterOrEqual(t, p.Stats().DetectionCycles, int64(1))
	assert.Equal(t, 1, tracker.Len())
}

func TestDetectionSingleFlight(t *testing.T) {
	source := newTestSource(12, 100*time.Millisecond)
	release := make(chan struct{})
	var inFlight, maxInFlight, calls atomic.Int32
	source.onNext = func(index int) {
		if index == 8 {
			close(release)
		}
	}
	p, _ := newTestPipeline(t, source, Components[testFrame]{
		Regions: regionFunc(func(frame *testFrame) ([]mot.Rectangle, error) {
			calls.Add(1)
			n := inFlight.Add(1)
			for {
				m := maxInFlight.Load()
				if n <= m || maxInFlight.CompareAndSwap(m, n) {
					break
				}
			}
			<-release
			inFlight.Add(-1)
			return oneFace(frame)
		}),
	})
	require.NoError(t, p.Run(context.Background()))

	assert.EqualValues(t, 1, maxInFlight.Load())
	// One blocked cycle covers frames 0..7, later frames may start at most a few more
	assert.LessOrEqual(t, calls.Load(), int32(5))
	assert.Equal(t, source.counter.opened.Load(), source.counter.closed.Load())
}

func TestDetectionCadence(t *testing.T) {
	source := newTestSource(70, 10*time.Millisecond)
	var calls atomic.Int32
	p, _ := newTestPipeline(t, source, Components[testFrame]{
		Regions: regionFunc(func(frame *testFrame) ([]mot.Rectangle, error) {
			calls.Add(1)
			return nil, nil
		}),
	})
	require.NoError(t, p.Run(context.Background()))
	// 700ms of video at 70ms cadence
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
	assert.LessOrEqual(t, calls.Load(), int32(10))
}

func TestFlowMovesTracks(t *testing.T) {
	source := newTestSource(5, 10*time.Millisecond)
	p, tracker := newTestPipeline(t, source, Components[testFrame]{
		Flow: flowFunc(func(frame *testFrame, points []mot.Point) ([]mot.Point, []bool, error) {
			next := make([]mot.Point, len(points))
			valid := make([]bool, len(points))
			for i, pt := range points {
				next[i] = mot.Point{X: pt.X + 10, Y: pt.Y}
				valid[i] = true
			}
			return next, valid, nil
		}),
	})
	report, err := tracker.MatchObjects([]mot.DetectionCandidate{mot.EstimateFromRegion(mot.NewRect(0, 0, 100, 100))}, source.clock.Now())
	require.NoError(t, err)
	before, _ := tracker.Track(report.Created[0])

	require.NoError(t, p.Run(context.Background()))
	after, ok := tracker.Track(report.Created[0])
	require.True(t, ok)
	assert.InDelta(t, before.Nose.X+5*8, after.Nose.X, 1e-9)
	assert.Equal(t, mot.TrackTracked, after.State)
}

func TestFlowPanicHoldsTracks(t *testing.T) {
	source := newTestSource(3, 10*time.Millisecond)
	p, tracker := newTestPipeline(t, source, Components[testFrame]{
		Flow: flowFunc(func(frame *testFrame, points []mot.Point) ([]mot.Point, []bool, error) {
			panic("native crash")
		}),
	})
	report, err := tracker.MatchObjects([]mot.DetectionCandidate{mot.EstimateFromRegion(mot.NewRect(0, 0, 100, 100))}, source.clock.Now())
	require.NoError(t, err)
	before, _ := tracker.Track(report.Created[0])

	require.NoError(t, p.Run(context.Background()))
	after, _ := tracker.Track(report.Created[0])
	assert.Equal(t, before.Nose, after.Nose)
	assert.EqualValues(t, 3, p.Stats().FlowFailures)
}

func TestComposeErrorDoesNotStop(t *testing.T) {
	source := newTestSource(6, 10*time.Millisecond)
	var observed []int
	p, _ := newTestPipeline(t, source, Components[testFrame]{
		Compositor: composeFunc(func(frame *testFrame, tracks []mot.TrackSnapshot) error {
			return errors.New("draw failed")
		}),
		Observers: []Observer[testFrame]{
			ObserverFunc[testFrame](func(frame *testFrame, index int, tracks []mot.TrackSnapshot) error {
				observed = append(observed, index)
				return errors.New("sink full")
			}),
		},
	})
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5}, observed)
}

func TestSourceErrorEndsRun(t *testing.T) {
	source := newTestSource(10, 10*time.Millisecond)
	errBoom := errors.New("camera unplugged")
	source.err = errBoom
	source.errAt = 3
	p, _ := newTestPipeline(t, source, Components[testFrame]{Regions: regionFunc(oneFace)})
	err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, errBoom, errors.Cause(err))
	assert.EqualValues(t, 3, p.Stats().Frames)
	assert.Equal(t, source.counter.opened.Load(), source.counter.closed.Load())
}

func TestContextCancelStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	source := newTestSource(100, 10*time.Millisecond)
	source.onNext = func(index int) {
		if index == 5 {
			cancel()
		}
	}
	p, _ := newTestPipeline(t, source, Components[testFrame]{})
	require.NoError(t, p.Run(ctx))
	assert.LessOrEqual(t, p.Stats().Frames, int64(6))
}

func TestStopDropsInFlightMerge(t *testing.T) {
	source := newTestSource(1, 10*time.Millisecond)
	release := make(chan struct{})
	source.onNext = func(index int) {
		if index == 1 {
			go func() {
				time.Sleep(50 * time.Millisecond)
				close(release)
			}()
		}
	}
	p, tracker := newTestPipeline(t, source, Components[testFrame]{
		Regions: regionFunc(func(frame *testFrame) ([]mot.Rectangle, error) {
			<-release
			return oneFace(frame)
		}),
	})
	require.NoError(t, p.Run(context.Background()))
	assert.Equal(t, 0, tracker.Len())
	assert.EqualValues(t, 1, p.Stats().DroppedMerges)
	assert.Equal(t, source.counter.opened.Load(), source.counter.closed.Load())
}
