package cmd

import (
	"fmt"

	"github.com/LdDl/rednose/internal/log"
	"github.com/LdDl/rednose/pipeline"
	"github.com/LdDl/rednose/vision"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

var photoCmd = &cobra.Command{
	Use:   "photo <input> <output>",
	Short: "Draw a nose on every face of a still image",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res resources
		defer func() { res.Close() }()

		regions, regionsCloser, err := buildRegions(cfg)
		if err != nil {
			return err
		}
		res = append(res, regionsCloser)
		landmarks, landmarksCloser, err := buildLandmarks(cfg)
		if err != nil {
			return err
		}
		res = append(res, landmarksCloser)

		cycle := pipeline.NewDetectionCycle[gocv.Mat](regions, landmarks, cfg.PipelineParams().Estimate, log.With("component", "photo"))
		markers, err := vision.AnnotatePhotoFile(args[0], args[1], cycle, cfg.Fusion().Radius, buildCompositor(cfg))
		if err != nil {
			return err
		}
		for _, m := range markers {
			fmt.Printf("nose (%.1f, %.1f) radius %.2f face width %.1f\n", m.Nose.X, m.Nose.Y, m.Radius, m.FaceWidthHint)
		}
		log.Info("photo annotated", "faces", len(markers), "output", args[1])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(photoCmd)
}
