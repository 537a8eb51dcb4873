package cmd

import (
	"context"
	"strings"
	"testing"

	"github.com/LdDl/rednose/mot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFloats(t *testing.T) {
	values, err := parseFloats(" 1.5, 2 ,3", 3)
	require.NoError(t, err)
	assert.Equal(t, []float64{1.5, 2, 3}, values)

	_, err = parseFloats("1,2", 3)
	assert.Error(t, err)
	_, err = parseFloats("1,x", 2)
	assert.Error(t, err)
}

func TestRadiusCandidate(t *testing.T) {
	candidate, err := radiusCandidate(RadiusOptions{Region: "0,0,100,100"})
	require.NoError(t, err)
	assert.Equal(t, mot.SourceFallback, candidate.Source)
	assert.Equal(t, mot.Point{X: 50, Y: 55}, candidate.Nose)

	candidate, err = radiusCandidate(RadiusOptions{Nose: "10,10", Left: "0,20", Right: "20,20", FaceWidth: 120})
	require.NoError(t, err)
	assert.Equal(t, mot.Point{X: 0, Y: 20}, candidate.Left)
	assert.Equal(t, 120.0, candidate.FaceWidth)

	_, err = radiusCandidate(RadiusOptions{Nose: "10,10"})
	assert.Error(t, err)
}

func TestResolveMirror(t *testing.T) {
	mirror, err := resolveMirror("auto", true)
	require.NoError(t, err)
	assert.True(t, mirror)
	mirror, err = resolveMirror("auto", false)
	require.NoError(t, err)
	assert.False(t, mirror)
	mirror, err = resolveMirror("true", false)
	require.NoError(t, err)
	assert.True(t, mirror)
	_, err = resolveMirror("sometimes", false)
	assert.Error(t, err)
}

type countingRequester struct {
	n int
}

func (c *countingRequester) Request() {
	c.n++
}

func TestRequestOnEnter(t *testing.T) {
	still := &countingRequester{}
	requestOnEnter(context.Background(), strings.NewReader("\n\nsave\n"), still)
	assert.Equal(t, 3, still.n)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cancelled := &countingRequester{}
	requestOnEnter(ctx, strings.NewReader("\n\n"), cancelled)
	assert.Equal(t, 0, cancelled.n)
}
