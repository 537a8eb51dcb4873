// Package config loads rednose settings from a YAML file with REDNOSE_* environment overrides.
package config

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LdDl/rednose/mot"
	"github.com/LdDl/rednose/pipeline"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Duration is time.Duration written as "70ms", "0.5s" in YAML
type Duration time.Duration

// UnmarshalYAML parses duration strings
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(value.Value))
	if err != nil {
		return errors.Wrapf(err, "line %d: invalid duration %q", value.Line, value.Value)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML writes duration as a string
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

type Config struct {
	Log       LogConfig       `yaml:"log"`
	Tracker   TrackerConfig   `yaml:"tracker"`
	Pipeline  PipelineConfig  `yaml:"pipeline"`
	Detector  DetectorConfig  `yaml:"detector"`
	Landmarks LandmarksConfig `yaml:"landmarks"`
	Flow      FlowConfig      `yaml:"flow"`
	Output    OutputConfig    `yaml:"output"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

type TrackerConfig struct {
	MatchThreshold     float64      `yaml:"match_threshold"`
	DetectBlend        float64      `yaml:"detect_blend"`
	FlowBlend          float64      `yaml:"flow_blend"`
	FaceWidthBlend     float64      `yaml:"face_width_blend"`
	RadiusBlend        float64      `yaml:"radius_blend"`
	RadiusDeadband     float64      `yaml:"radius_deadband"`
	RadiusMaxStep      float64      `yaml:"radius_max_step"`
	IdleExpiry         Duration     `yaml:"idle_expiry"`
	MinValidFlowPoints int          `yaml:"min_valid_flow_points"`
	PredictiveMatching bool         `yaml:"predictive_matching"`
	MaxTrailLen        int          `yaml:"max_trail_len"`
	Radius             RadiusConfig `yaml:"radius"`
}

type RadiusConfig struct {
	NostrilFactor float64 `yaml:"nostril_factor"`
	MinFaceRatio  float64 `yaml:"min_face_ratio"`
	MaxFaceRatio  float64 `yaml:"max_face_ratio"`
	AsymCapRatio  float64 `yaml:"asym_cap_ratio"`
	DrawScale     float64 `yaml:"draw_scale"`
}

type PipelineConfig struct {
	DetectInterval  Duration `yaml:"detect_interval"`
	MinNostrilRatio float64  `yaml:"min_nostril_ratio"`
	MaxNostrilRatio float64  `yaml:"max_nostril_ratio"`
	FallbackNoseX   float64  `yaml:"fallback_nose_x"`
	FallbackNoseY   float64  `yaml:"fallback_nose_y"`
	FallbackNostril float64  `yaml:"fallback_nostril_half_span"`
}

// Region detector backends
const (
	DetectorYuNet = "yunet"
	DetectorPigo  = "pigo"
)

// Landmark backends
const (
	LandmarksNone        = "none"
	LandmarksPupils      = "pupils"
	LandmarksLandmark106 = "landmark106"
)

type DetectorConfig struct {
	Backend        string  `yaml:"backend"`
	YuNetModel     string  `yaml:"yunet_model"`
	ScoreThreshold float64 `yaml:"score_threshold"`
	PigoCascade    string  `yaml:"pigo_cascade"`
	MinFaceWidth   float64 `yaml:"min_face_width"`
}

type LandmarksConfig struct {
	Backend           string `yaml:"backend"`
	PuplocCascade     string `yaml:"puploc_cascade"`
	Landmark106Model  string `yaml:"landmark106_model"`
	NoseIndex         int    `yaml:"nose_index"`
	LeftNostrilIndex  int    `yaml:"left_nostril_index"`
	RightNostrilIndex int    `yaml:"right_nostril_index"`
}

type FlowConfig struct {
	Enabled    bool `yaml:"enabled"`
	WindowSize int  `yaml:"window_size"`
	MaxLevel   int  `yaml:"max_level"`
}

type OutputConfig struct {
	DrawTrail bool    `yaml:"draw_trail"`
	FPS       float64 `yaml:"fps"`
	// Stills of composed frames; empty dir disables them
	SnapshotDir      string   `yaml:"snapshot_dir"`
	SnapshotFormat   string   `yaml:"snapshot_format"`
	SnapshotInterval Duration `yaml:"snapshot_interval"`
}

// Default returns configuration with engine defaults
func Default() *Config {
	fusion := mot.DefaultFusionConfig()
	pipe := pipeline.DefaultConfig()
	return &Config{
		Log: LogConfig{Level: "info"},
		Tracker: TrackerConfig{
			MatchThreshold:     fusion.MatchThreshold,
			DetectBlend:        fusion.DetectBlend,
			FlowBlend:          fusion.FlowBlend,
			FaceWidthBlend:     fusion.FaceWidthBlend,
			RadiusBlend:        fusion.RadiusBlend,
			RadiusDeadband:     fusion.RadiusDeadband,
			RadiusMaxStep:      fusion.RadiusMaxStep,
			IdleExpiry:         Duration(fusion.IdleExpiry),
			MinValidFlowPoints: fusion.MinValidFlowPoints,
			PredictiveMatching: fusion.PredictiveMatching,
			MaxTrailLen:        fusion.MaxTrailLen,
			Radius: RadiusConfig{
				NostrilFactor: fusion.Radius.NostrilFactor,
				MinFaceRatio:  fusion.Radius.MinFaceRatio,
				MaxFaceRatio:  fusion.Radius.MaxFaceRatio,
				AsymCapRatio:  fusion.Radius.AsymCapRatio,
				DrawScale:     fusion.Radius.DrawScale,
			},
		},
		Pipeline: PipelineConfig{
			DetectInterval:  Duration(pipe.DetectInterval),
			MinNostrilRatio: pipe.Estimate.MinNostrilRatio,
			MaxNostrilRatio: pipe.Estimate.MaxNostrilRatio,
			FallbackNoseX:   pipe.Estimate.NoseX,
			FallbackNoseY:   pipe.Estimate.NoseY,
			FallbackNostril: pipe.Estimate.NostrilHalfSpan,
		},
		Detector: DetectorConfig{
			Backend:        DetectorYuNet,
			YuNetModel:     "models/face_detection_yunet_2023mar.onnx",
			ScoreThreshold: 0.6,
			PigoCascade:    "cascade/facefinder",
			MinFaceWidth:   24,
		},
		Landmarks: LandmarksConfig{
			Backend:           LandmarksPupils,
			PuplocCascade:     "cascade/puploc",
			Landmark106Model:  "models/2d106det.onnx",
			NoseIndex:         86,
			LeftNostrilIndex:  82,
			RightNostrilIndex: 83,
		},
		Flow: FlowConfig{
			Enabled:    true,
			WindowSize: 21,
			MaxLevel:   3,
		},
		Output: OutputConfig{
			DrawTrail:      false,
			FPS:            30,
			SnapshotFormat: "png",
		},
	}
}

// Load reads YAML file over defaults (path may be empty), then applies environment overrides
// and validates the result. Unknown keys in the file are an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrapf(err, "Can't read config %s", path)
		}
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, errors.Wrapf(err, "Can't parse config %s", path)
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() error {
	var err error
	cfg.Log.Level = envString("REDNOSE_LOG_LEVEL", cfg.Log.Level)
	cfg.Detector.Backend = envString("REDNOSE_DETECTOR", cfg.Detector.Backend)
	cfg.Detector.YuNetModel = envString("REDNOSE_YUNET_MODEL", cfg.Detector.YuNetModel)
	cfg.Detector.PigoCascade = envString("REDNOSE_PIGO_CASCADE", cfg.Detector.PigoCascade)
	cfg.Landmarks.Backend = envString("REDNOSE_LANDMARKS", cfg.Landmarks.Backend)
	cfg.Landmarks.PuplocCascade = envString("REDNOSE_PUPLOC_CASCADE", cfg.Landmarks.PuplocCascade)
	cfg.Landmarks.Landmark106Model = envString("REDNOSE_LANDMARK106_MODEL", cfg.Landmarks.Landmark106Model)
	cfg.Output.SnapshotDir = envString("REDNOSE_SNAPSHOT_DIR", cfg.Output.SnapshotDir)
	if cfg.Tracker.MatchThreshold, err = envFloat("REDNOSE_MATCH_THRESHOLD", cfg.Tracker.MatchThreshold); err != nil {
		return err
	}
	if cfg.Tracker.IdleExpiry, err = envDuration("REDNOSE_IDLE_EXPIRY", cfg.Tracker.IdleExpiry); err != nil {
		return err
	}
	if cfg.Pipeline.DetectInterval, err = envDuration("REDNOSE_DETECT_INTERVAL", cfg.Pipeline.DetectInterval); err != nil {
		return err
	}
	if cfg.Tracker.PredictiveMatching, err = envBool("REDNOSE_PREDICTIVE_MATCHING", cfg.Tracker.PredictiveMatching); err != nil {
		return err
	}
	return nil
}

func envString(key, defaultVal string) string {
	if s := strings.TrimSpace(os.Getenv(key)); s != "" {
		return s
	}
	return defaultVal
}

func envFloat(key string, defaultVal float64) (float64, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return defaultVal, errors.Wrapf(err, "invalid %s", key)
	}
	return v, nil
}

func envDuration(key string, defaultVal Duration) (Duration, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal, nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal, errors.Wrapf(err, "invalid %s", key)
	}
	return Duration(v), nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	s := strings.TrimSpace(os.Getenv(key))
	if s == "" {
		return defaultVal, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return defaultVal, errors.Wrapf(err, "invalid %s", key)
	}
	return v, nil
}

// Fusion converts tracker section to engine configuration
func (cfg *Config) Fusion() mot.FusionConfig {
	fusion := mot.DefaultFusionConfig()
	t := cfg.Tracker
	fusion.MatchThreshold = t.MatchThreshold
	fusion.DetectBlend = t.DetectBlend
	fusion.FlowBlend = t.FlowBlend
	fusion.FaceWidthBlend = t.FaceWidthBlend
	fusion.RadiusBlend = t.RadiusBlend
	fusion.RadiusDeadband = t.RadiusDeadband
	fusion.RadiusMaxStep = t.RadiusMaxStep
	fusion.IdleExpiry = time.Duration(t.IdleExpiry)
	fusion.MinValidFlowPoints = t.MinValidFlowPoints
	fusion.PredictiveMatching = t.PredictiveMatching
	fusion.PredictorDT = time.Duration(cfg.Pipeline.DetectInterval).Seconds()
	if !(fusion.PredictorDT > 0) {
		fusion.PredictorDT = mot.DefaultFusionConfig().PredictorDT
	}
	fusion.MaxTrailLen = t.MaxTrailLen
	fusion.Radius = mot.RadiusParams{
		NostrilFactor: t.Radius.NostrilFactor,
		MinFaceRatio:  t.Radius.MinFaceRatio,
		MaxFaceRatio:  t.Radius.MaxFaceRatio,
		AsymCapRatio:  t.Radius.AsymCapRatio,
		DrawScale:     t.Radius.DrawScale,
	}
	return fusion
}

// PipelineParams converts pipeline section to frame loop configuration
func (cfg *Config) PipelineParams() pipeline.Config {
	p := cfg.Pipeline
	return pipeline.Config{
		DetectInterval: time.Duration(p.DetectInterval),
		Estimate: mot.EstimateParams{
			MinNostrilRatio: p.MinNostrilRatio,
			MaxNostrilRatio: p.MaxNostrilRatio,
			NoseX:           p.FallbackNoseX,
			NoseY:           p.FallbackNoseY,
			NostrilHalfSpan: p.FallbackNostril,
		},
	}
}

// Validate checks every section
func (cfg *Config) Validate() error {
	if err := cfg.Fusion().Validate(); err != nil {
		return errors.Wrap(err, "tracker")
	}
	if err := cfg.PipelineParams().Validate(); err != nil {
		return errors.Wrap(err, "pipeline")
	}
	switch cfg.Detector.Backend {
	case DetectorYuNet, DetectorPigo:
	default:
		return errors.Wrapf(mot.ErrInvalidConfig, "detector: unknown backend %q", cfg.Detector.Backend)
	}
	switch cfg.Landmarks.Backend {
	case LandmarksNone, LandmarksPupils, LandmarksLandmark106:
	default:
		return errors.Wrapf(mot.ErrInvalidConfig, "landmarks: unknown backend %q", cfg.Landmarks.Backend)
	}
	if cfg.Flow.Enabled && (cfg.Flow.WindowSize < 3 || cfg.Flow.WindowSize%2 == 0 || cfg.Flow.MaxLevel < 0) {
		return errors.Wrapf(mot.ErrInvalidConfig, "flow: window size must be odd and >= 3, max level >= 0, got %d/%d", cfg.Flow.WindowSize, cfg.Flow.MaxLevel)
	}
	if !(cfg.Output.FPS > 0) {
		return errors.Wrapf(mot.ErrInvalidConfig, "output: fps must be positive, got %v", cfg.Output.FPS)
	}
	switch strings.ToLower(cfg.Output.SnapshotFormat) {
	case "png", "jpg", "jpeg":
	default:
		return errors.Wrapf(mot.ErrInvalidConfig, "output: unknown snapshot format %q", cfg.Output.SnapshotFormat)
	}
	if cfg.Output.SnapshotInterval < 0 {
		return errors.Wrapf(mot.ErrInvalidConfig, "output: snapshot interval must not be negative, got %v", time.Duration(cfg.Output.SnapshotInterval))
	}
	return nil
}
