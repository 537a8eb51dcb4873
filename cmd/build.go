package cmd

import (
	"io"

	"github.com/LdDl/rednose/internal/config"
	"github.com/LdDl/rednose/pipeline"
	"github.com/LdDl/rednose/vision"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// resources closes everything opened while building collaborators
type resources []io.Closer

func (r resources) Close() {
	for i := len(r) - 1; i >= 0; i-- {
		r[i].Close()
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func buildRegions(cfg *config.Config) (pipeline.RegionDetector[gocv.Mat], io.Closer, error) {
	switch cfg.Detector.Backend {
	case config.DetectorPigo:
		pcfg := vision.DefaultPigoConfig()
		pcfg.CascadePath = cfg.Detector.PigoCascade
		pcfg.MinSize = int(cfg.Detector.MinFaceWidth)
		detector, err := vision.NewPigoDetector(pcfg)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Can't create pigo detector")
		}
		return detector, nopCloser{}, nil
	default:
		ycfg := vision.DefaultYuNetConfig()
		ycfg.ModelPath = cfg.Detector.YuNetModel
		ycfg.ScoreThreshold = cfg.Detector.ScoreThreshold
		ycfg.MinFaceWidth = cfg.Detector.MinFaceWidth
		detector, err := vision.NewYuNet(ycfg)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Can't create YuNet detector")
		}
		return detector, detector, nil
	}
}

// buildLandmarks returns nil detector for the "none" backend: every region then uses the geometric fallback
func buildLandmarks(cfg *config.Config) (pipeline.LandmarkDetector[gocv.Mat], io.Closer, error) {
	switch cfg.Landmarks.Backend {
	case config.LandmarksPupils:
		ncfg := vision.DefaultPupilNoseConfig()
		ncfg.CascadePath = cfg.Landmarks.PuplocCascade
		landmarks, err := vision.NewPupilNoseLandmarks(ncfg)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Can't create pupil landmarks")
		}
		return landmarks, nopCloser{}, nil
	case config.LandmarksLandmark106:
		lcfg := vision.DefaultLandmark106Config()
		lcfg.ModelPath = cfg.Landmarks.Landmark106Model
		lcfg.NoseIndex = cfg.Landmarks.NoseIndex
		lcfg.LeftNostrilIndex = cfg.Landmarks.LeftNostrilIndex
		lcfg.RightNostrilIndex = cfg.Landmarks.RightNostrilIndex
		landmarks, err := vision.NewLandmark106(lcfg)
		if err != nil {
			return nil, nil, errors.Wrap(err, "Can't create 106-point landmarks")
		}
		return landmarks, landmarks, nil
	default:
		return nil, nopCloser{}, nil
	}
}

func buildFlow(cfg *config.Config) *vision.LKFlow {
	lk := vision.DefaultLKFlowConfig()
	lk.WindowSize = cfg.Flow.WindowSize
	lk.MaxLevel = cfg.Flow.MaxLevel
	return vision.NewLKFlow(lk)
}

func buildCompositor(cfg *config.Config) *vision.NoseCompositor {
	ccfg := vision.DefaultCompositorConfig()
	ccfg.DrawTrail = cfg.Output.DrawTrail
	return vision.NewNoseCompositor(ccfg)
}
