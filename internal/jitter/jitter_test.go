package jitter

import (
	"testing"

	"github.com/LdDl/rednose/mot"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorReport(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	c := NewCollector()
	c.Add([]mot.TrackSnapshot{{ID: a, Nose: mot.Point{X: 0, Y: 0}, Radius: 10}})
	c.Add([]mot.TrackSnapshot{
		{ID: a, Nose: mot.Point{X: 3, Y: 4}, Radius: 12},
		{ID: b, Nose: mot.Point{X: 100, Y: 100}, Radius: 20},
	})
	c.Add([]mot.TrackSnapshot{{ID: a, Nose: mot.Point{X: 3, Y: 4}, Radius: 14}})

	report := c.Report()
	require.Len(t, report, 2)
	assert.Equal(t, a, report[0].ID)
	assert.Equal(t, 3, report[0].Frames)
	assert.InDelta(t, 12.0, report[0].RadiusMean, 1e-9)
	assert.InDelta(t, 2.0, report[0].RadiusStdDev, 1e-9)
	assert.InDelta(t, 2.5, report[0].StepMean, 1e-9)
	assert.InDelta(t, 5.0, report[0].StepMax, 1e-9)

	assert.Equal(t, b, report[1].ID)
	assert.Equal(t, 1, report[1].Frames)
	assert.InDelta(t, 20.0, report[1].RadiusMean, 1e-9)
	assert.Zero(t, report[1].RadiusStdDev)
	assert.Zero(t, report[1].StepMax)
}

func TestObserverFeedsCollector(t *testing.T) {
	c := NewCollector()
	obs := Observer[int](c)
	id := uuid.New()
	require.NoError(t, obs.Observe(nil, 0, []mot.TrackSnapshot{{ID: id, Radius: 5}}))
	require.Len(t, c.Report(), 1)
}
