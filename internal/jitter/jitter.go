// Package jitter measures how steady the drawn markers are over a run.
package jitter

import (
	"sort"
	"sync"

	"github.com/LdDl/rednose/mot"
	"github.com/LdDl/rednose/pipeline"
	"github.com/google/uuid"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// TrackStats is steadiness of one track identity
type TrackStats struct {
	ID     uuid.UUID
	Frames int
	// Marker radius over all frames the track was drawn on
	RadiusMean   float64
	RadiusStdDev float64
	// Frame-to-frame nose displacement (pixels)
	StepMean   float64
	StepStdDev float64
	StepMax    float64
}

type series struct {
	first  int
	radius []float64
	steps  []float64
	last   mot.Point
}

// Collector accumulates per-track samples. Safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	tracks map[uuid.UUID]*series
	order  int
}

// NewCollector creates empty collector
func NewCollector() *Collector {
	return &Collector{
		tracks: make(map[uuid.UUID]*series),
	}
}

// Add records one frame worth of tracks
func (c *Collector) Add(tracks []mot.TrackSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, track := range tracks {
		s, ok := c.tracks[track.ID]
		if !ok {
			s = &series{first: c.order}
			c.order++
			c.tracks[track.ID] = s
		} else {
			s.steps = append(s.steps, s.last.DistanceTo(track.Nose))
		}
		s.last = track.Nose
		s.radius = append(s.radius, track.Radius)
	}
}

// Observer adapts collector to the pipeline
func Observer[T any](c *Collector) pipeline.Observer[T] {
	return pipeline.ObserverFunc[T](func(frame *T, index int, tracks []mot.TrackSnapshot) error {
		c.Add(tracks)
		return nil
	})
}

// Report returns statistics for every track in order of first appearance
func (c *Collector) Report() []TrackStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	report := make([]TrackStats, 0, len(c.tracks))
	firsts := make(map[uuid.UUID]int, len(c.tracks))
	for id, s := range c.tracks {
		ts := TrackStats{
			ID:     id,
			Frames: len(s.radius),
		}
		ts.RadiusMean, ts.RadiusStdDev = meanStdDev(s.radius)
		if len(s.steps) > 0 {
			ts.StepMean, ts.StepStdDev = meanStdDev(s.steps)
			ts.StepMax = floats.Max(s.steps)
		}
		report = append(report, ts)
		firsts[id] = s.first
	}
	sort.Slice(report, func(i, j int) bool {
		return firsts[report[i].ID] < firsts[report[j].ID]
	})
	return report
}

// meanStdDev is stat.MeanStdDev with zero deviation for a single sample
func meanStdDev(x []float64) (float64, float64) {
	if len(x) == 1 {
		return x[0], 0
	}
	return stat.MeanStdDev(x, nil)
}
