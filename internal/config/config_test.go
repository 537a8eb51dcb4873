package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LdDl/rednose/mot"
	"github.com/LdDl/rednose/pipeline"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rednose.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultMatchesEngine(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, mot.DefaultFusionConfig(), cfg.Fusion())
	assert.Equal(t, pipeline.DefaultConfig(), cfg.PipelineParams())
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
tracker:
  match_threshold: 45
  idle_expiry: 2s
  predictive_matching: true
  radius:
    draw_scale: 1.5
pipeline:
  detect_interval: 100ms
detector:
  backend: pigo
landmarks:
  backend: none
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, DetectorPigo, cfg.Detector.Backend)
	assert.Equal(t, LandmarksNone, cfg.Landmarks.Backend)

	fusion := cfg.Fusion()
	assert.Equal(t, 45.0, fusion.MatchThreshold)
	assert.Equal(t, 2*time.Second, fusion.IdleExpiry)
	assert.True(t, fusion.PredictiveMatching)
	assert.Equal(t, 1.5, fusion.Radius.DrawScale)
	// Untouched keys keep defaults
	assert.Equal(t, 0.75, fusion.Radius.NostrilFactor)
	assert.InDelta(t, 0.1, fusion.PredictorDT, 1e-9)
	assert.Equal(t, 100*time.Millisecond, cfg.PipelineParams().DetectInterval)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, mot.DefaultFusionConfig(), cfg.Fusion())
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "tracker:\n  match_treshold: 10\n"))
	require.Error(t, err)
}

func TestLoadRejectsBadDuration(t *testing.T) {
	_, err := Load(writeConfig(t, "tracker:\n  idle_expiry: soon\n"))
	require.Error(t, err)
}

func TestLoadValidates(t *testing.T) {
	_, err := Load(writeConfig(t, "tracker:\n  detect_blend: 2\n"))
	require.Error(t, err)
	assert.Equal(t, mot.ErrInvalidConfig, errors.Cause(err))

	_, err = Load(writeConfig(t, "detector:\n  backend: haar\n"))
	assert.Equal(t, mot.ErrInvalidConfig, errors.Cause(err))

	_, err = Load(writeConfig(t, "flow:\n  window_size: 20\n"))
	assert.Equal(t, mot.ErrInvalidConfig, errors.Cause(err))
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REDNOSE_DETECTOR", "pigo")
	t.Setenv("REDNOSE_IDLE_EXPIRY", "750ms")
	t.Setenv("REDNOSE_MATCH_THRESHOLD", "80")
	t.Setenv("REDNOSE_PREDICTIVE_MATCHING", "true")
	path := writeConfig(t, "detector:\n  backend: yunet\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DetectorPigo, cfg.Detector.Backend)
	assert.Equal(t, 750*time.Millisecond, cfg.Fusion().IdleExpiry)
	assert.Equal(t, 80.0, cfg.Fusion().MatchThreshold)
	assert.True(t, cfg.Fusion().PredictiveMatching)

	t.Setenv("REDNOSE_DETECT_INTERVAL", "fast")
	_, err = Load("")
	require.Error(t, err)
}

func TestLoadSnapshotOutput(t *testing.T) {
	cfg, err := Load(writeConfig(t, "output:\n  snapshot_dir: stills\n  snapshot_format: jpg\n  snapshot_interval: 5s\n"))
	require.NoError(t, err)
	assert.Equal(t, "stills", cfg.Output.SnapshotDir)
	assert.Equal(t, "jpg", cfg.Output.SnapshotFormat)
	assert.Equal(t, Duration(5*time.Second), cfg.Output.SnapshotInterval)

	t.Setenv("REDNOSE_SNAPSHOT_DIR", "/tmp/rednose")
	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/rednose", cfg.Output.SnapshotDir)
	assert.Equal(t, "png", cfg.Output.SnapshotFormat)

	_, err = Load(writeConfig(t, "output:\n  snapshot_format: gif\n"))
	assert.Equal(t, mot.ErrInvalidConfig, errors.Cause(err))
}
