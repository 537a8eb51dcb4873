package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/LdDl/rednose/mot"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// RadiusOptions holds flags of the radius command
type RadiusOptions struct {
	Nose      string
	Left      string
	Right     string
	Region    string
	FaceWidth float64
}

var radiusOpts RadiusOptions

var radiusCmd = &cobra.Command{
	Use:   "radius",
	Short: "Evaluate marker radius for given nose points or a face region",
	Long: `Evaluates the radius stabilizer offline. Either pass --nose, --left and --right
as "x,y" points (plus optional --face-width), or --region "x,y,w,h" to size the
geometric fallback estimate of that region.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		candidate, err := radiusCandidate(radiusOpts)
		if err != nil {
			return err
		}
		r := cfg.Fusion().Radius.Compute(candidate.Nose, candidate.Left, candidate.Right, candidate.FaceWidth)
		fmt.Printf("source %s\nnose (%g, %g) left (%g, %g) right (%g, %g) face width %g\nradius %.4f\n",
			candidate.Source,
			candidate.Nose.X, candidate.Nose.Y,
			candidate.Left.X, candidate.Left.Y,
			candidate.Right.X, candidate.Right.Y,
			candidate.FaceWidth, r)
		return nil
	},
}

func init() {
	radiusCmd.Flags().StringVar(&radiusOpts.Nose, "nose", "", "Nose tip as x,y")
	radiusCmd.Flags().StringVar(&radiusOpts.Left, "left", "", "Left nostril as x,y")
	radiusCmd.Flags().StringVar(&radiusOpts.Right, "right", "", "Right nostril as x,y")
	radiusCmd.Flags().StringVar(&radiusOpts.Region, "region", "", "Face region as x,y,w,h")
	radiusCmd.Flags().Float64Var(&radiusOpts.FaceWidth, "face-width", 0, "Face width hint, 0 for none")
	rootCmd.AddCommand(radiusCmd)
}

func radiusCandidate(opts RadiusOptions) (mot.DetectionCandidate, error) {
	if opts.Region != "" {
		values, err := parseFloats(opts.Region, 4)
		if err != nil {
			return mot.DetectionCandidate{}, errors.Wrap(err, "--region")
		}
		return mot.EstimateFromRegion(mot.NewRect(values[0], values[1], values[2], values[3])), nil
	}
	candidate := mot.DetectionCandidate{FaceWidth: opts.FaceWidth, Source: mot.SourceLandmarks}
	for _, p := range []struct {
		name  string
		value string
		dst   *mot.Point
	}{
		{"--nose", opts.Nose, &candidate.Nose},
		{"--left", opts.Left, &candidate.Left},
		{"--right", opts.Right, &candidate.Right},
	} {
		values, err := parseFloats(p.value, 2)
		if err != nil {
			return mot.DetectionCandidate{}, errors.Wrap(err, p.name)
		}
		*p.dst = mot.NewPoint(values[0], values[1])
	}
	return candidate, nil
}

func parseFloats(s string, n int) ([]float64, error) {
	parts := strings.Split(s, ",")
	if len(parts) != n {
		return nil, errors.Errorf("expected %d comma separated numbers, got %q", n, s)
	}
	values := make([]float64, n)
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid number %q", part)
		}
		values[i] = v
	}
	return values, nil
}
