package pipeline

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LdDl/rednose/mot"
	"github.com/pkg/errors"
)

var (
	// ErrAlreadyRunning is returned when Run is called on a running pipeline
	ErrAlreadyRunning = errors.New("pipeline is already running")
	// ErrNoSource is returned by New when no frame source is given
	ErrNoSource = errors.New("frame source is required")
)

// Components are the collaborators of a pipeline. Only Source is mandatory:
// without Regions no detection runs, without Flow tracks move only on detection.
type Components[T any] struct {
	Source     FrameSource[T]
	Regions    RegionDetector[T]
	Landmarks  LandmarkDetector[T]
	Flow       FlowEstimator[T]
	Compositor Compositor[T]
	Observers  []Observer[T]
}

// Stats are running counters of a pipeline
type Stats struct {
	Frames          int64
	DetectionCycles int64
	// Frames whose optical flow step failed or panicked
	FlowFailures int64
	// Detection results dropped because the pipeline stopped first
	DroppedMerges int64
}

// Pipeline is the per-frame loop: optical flow on every frame, detection cycles in a single
// background worker with a cadence gate, then composition and observers.
type Pipeline[T any, PF Frame[T]] struct {
	tracker    *mot.FusionTracker
	source     FrameSource[T]
	flow       FlowEstimator[T]
	cycle      *DetectionCycle[T]
	compositor Compositor[T]
	observers  []Observer[T]
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time

	running atomic.Bool
	// Guards "alive" together with the merge of a finished detection
	mergeMu sync.Mutex
	alive   bool
	// Single-flight flag of the detection worker
	busy atomic.Bool
	// Only touched by the frame loop
	lastDetect time.Time
	wg         sync.WaitGroup

	frames        atomic.Int64
	cycles        atomic.Int64
	flowFailures  atomic.Int64
	droppedMerges atomic.Int64
}

// New creates pipeline around tracker
func New[T any, PF Frame[T]](tracker *mot.FusionTracker, components Components[T], cfg Config, logger *slog.Logger) (*Pipeline[T, PF], error) {
	if tracker == nil {
		return nil, errors.New("tracker is required")
	}
	if components.Source == nil {
		return nil, ErrNoSource
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline[T, PF]{
		tracker:    tracker,
		source:     components.Source,
		flow:       components.Flow,
		compositor: components.Compositor,
		observers:  components.Observers,
		cfg:        cfg,
		logger:     logger,
		now:        time.Now,
	}
	if components.Regions != nil {
		p.cycle = NewDetectionCycle(components.Regions, components.Landmarks, cfg.Estimate, logger)
	}
	return p, nil
}

// SetClock replaces time source used for detection cadence and fusion timestamps.
// Must be called before Run.
func (p *Pipeline[T, PF]) SetClock(now func() time.Time) {
	p.now = now
}

// Tracker returns underlying tracker
func (p *Pipeline[T, PF]) Tracker() *mot.FusionTracker {
	return p.tracker
}

// Stats returns current counters
func (p *Pipeline[T, PF]) Stats() Stats {
	return Stats{
		Frames:          p.frames.Load(),
		DetectionCycles: p.cycles.Load(),
		FlowFailures:    p.flowFailures.Load(),
		DroppedMerges:   p.droppedMerges.Load(),
	}
}

// Run processes frames until the source is exhausted or ctx is cancelled. Both are a normal
// stop and return nil. Only frame source failures are returned. Before Run returns the
// pipeline is marked stopped and any in-flight detection has finished; its result is dropped.
func (p *Pipeline[T, PF]) Run(ctx context.Context) error {
	if !p.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer p.running.Store(false)

	p.mergeMu.Lock()
	p.alive = true
	p.mergeMu.Unlock()
	defer p.shutdown()

	for index := 0; ; index++ {
		if ctx.Err() != nil {
			return nil
		}
		frame, err := p.source.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || ctx.Err() != nil {
				p.logger.Debug("frame source finished", "frames", index)
				return nil
			}
			return errors.Wrap(err, "Can't read frame")
		}
		if frame == nil {
			continue
		}
		p.processFrame(frame, index)
	}
}

func (p *Pipeline[T, PF]) shutdown() {
	p.mergeMu.Lock()
	p.alive = false
	p.mergeMu.Unlock()
	p.wg.Wait()
}

func (p *Pipeline[T, PF]) processFrame(frame *T, index int) {
	defer func() {
		if err := PF(frame).Close(); err != nil {
			p.logger.Warn("can't release frame", "frame", index, "err", err)
		}
	}()
	p.frames.Add(1)
	now := p.now()

	p.stepFlow(frame, index)
	tracks := p.tracker.Tracks()
	p.maybeDetect(frame, now)

	if p.compositor != nil {
		if err := p.compositor.Compose(frame, tracks); err != nil {
			p.logger.Warn("can't compose frame", "frame", index, "err", err)
		}
	}
	for _, observer := range p.observers {
		if err := observer.Observe(frame, index, tracks); err != nil {
			p.logger.Warn("observer failed", "frame", index, "err", err)
		}
	}
}

// stepFlow moves every track along optical flow. The estimator is called even without
// tracks so it always holds the latest frame.
func (p *Pipeline[T, PF]) stepFlow(frame *T, index int) {
	if p.flow == nil {
		return
	}
	batch := p.tracker.PrepareFlow()
	next, valid, flowErr := p.estimateFlow(frame, batch.Points)
	report, err := p.tracker.ApplyFlow(batch, next, valid, flowErr)
	if err != nil {
		p.flowFailures.Add(1)
		p.logger.Debug("optical flow skipped", "frame", index, "err", err)
		return
	}
	if report.Stale > 0 || report.Held > 0 {
		p.logger.Debug("optical flow", "frame", index, "updated", report.Updated, "held", report.Held, "stale", report.Stale)
	}
}

func (p *Pipeline[T, PF]) estimateFlow(frame *T, points []mot.Point) (next []mot.Point, valid []bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			next, valid = nil, nil
			err = errors.Errorf("optical flow panic: %v", r)
		}
	}()
	return p.flow.Estimate(frame, points)
}

// maybeDetect starts a detection cycle on a copy of frame when no cycle is running
// and the cadence allows it. Frames are never queued.
func (p *Pipeline[T, PF]) maybeDetect(frame *T, now time.Time) {
	if p.cycle == nil {
		return
	}
	if !p.lastDetect.IsZero() && now.Sub(p.lastDetect) < p.cfg.DetectInterval {
		return
	}
	if !p.busy.CompareAndSwap(false, true) {
		return
	}
	p.lastDetect = now
	clone := PF(frame).Clone()
	p.wg.Add(1)
	go p.detect(&clone)
}

func (p *Pipeline[T, PF]) detect(frame *T) {
	defer p.wg.Done()
	defer p.busy.Store(false)
	defer func() {
		if err := PF(frame).Close(); err != nil {
			p.logger.Warn("can't release detection frame", "err", err)
		}
	}()

	candidates, stats := p.cycle.Candidates(frame)
	p.cycles.Add(1)

	p.mergeMu.Lock()
	defer p.mergeMu.Unlock()
	if !p.alive {
		p.droppedMerges.Add(1)
		return
	}
	report, err := p.tracker.MatchObjects(candidates, p.now())
	if err != nil {
		p.logger.Warn("track predictor reset", "err", err)
	}
	p.logger.Debug("detection cycle",
		"regions", stats.Regions,
		"landmarks", stats.Landmarks,
		"fallbacks", stats.Fallbacks,
		"matched", len(report.Matched),
		"created", len(report.Created),
		"expired", len(report.Expired),
	)
}
