package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/LdDl/rednose/internal/config"
	"github.com/LdDl/rednose/internal/jitter"
	"github.com/LdDl/rednose/internal/log"
	"github.com/LdDl/rednose/mot"
	"github.com/LdDl/rednose/pipeline"
	"github.com/LdDl/rednose/vision"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gocv.io/x/gocv"
)

// RunOptions holds flags of the run command
type RunOptions struct {
	Input  string
	Output string
	Mirror string
	NoFlow bool
	Trail  bool
	Report bool
	// Stills of composed frames
	SnapshotDir      string
	SnapshotFormat   string
	SnapshotInterval time.Duration
}

var runOpts RunOptions

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Track faces in a video file or camera and draw stabilized noses",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVideo(cmd, runOpts)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runOpts.Input, "input", "i", "0", "Video file path or camera index")
	runCmd.Flags().StringVarP(&runOpts.Output, "output", "o", "", "Write annotated video to this file (.avi uses MJPG, others mp4v)")
	runCmd.Flags().StringVar(&runOpts.Mirror, "mirror", "auto", "Flip frames horizontally: auto (cameras only), true, false")
	runCmd.Flags().BoolVar(&runOpts.NoFlow, "no-flow", false, "Disable optical flow, tracks move on detection only")
	runCmd.Flags().BoolVar(&runOpts.Trail, "trail", false, "Draw recent nose positions")
	runCmd.Flags().BoolVar(&runOpts.Report, "report", true, "Print per-track jitter statistics when done")
	runCmd.Flags().StringVar(&runOpts.SnapshotDir, "snapshot-dir", "", "Save composed frames as stills into this directory, press Enter to take one")
	runCmd.Flags().StringVar(&runOpts.SnapshotFormat, "snapshot-format", "", "Still image format: png or jpg")
	runCmd.Flags().DurationVar(&runOpts.SnapshotInterval, "snapshot-every", 0, "Also take a still at this interval, 0 disables")
	rootCmd.AddCommand(runCmd)
}

// resolveMirror decides horizontal flip: cameras are mirrored by default
func resolveMirror(value string, device bool) (bool, error) {
	if value == "auto" {
		return device, nil
	}
	mirror, err := strconv.ParseBool(value)
	if err != nil {
		return false, errors.Errorf("invalid --mirror value %q", value)
	}
	return mirror, nil
}

func openSource(input, mirrorFlag string) (*vision.Capture, bool, error) {
	id, err := strconv.Atoi(input)
	device := err == nil
	mirror, err := resolveMirror(mirrorFlag, device)
	if err != nil {
		return nil, false, err
	}
	if device {
		capture, err := vision.OpenDevice(id, mirror)
		return capture, true, err
	}
	capture, err := vision.OpenFile(input, mirror)
	return capture, false, err
}

func runVideo(cmd *cobra.Command, opts RunOptions) error {
	logger := log.With("component", "run")
	var res resources
	defer func() { res.Close() }()

	capture, device, err := openSource(opts.Input, opts.Mirror)
	if err != nil {
		return err
	}
	res = append(res, capture)

	tracker, err := mot.NewFusionTracker(cfg.Fusion())
	if err != nil {
		return err
	}
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

	if opts.Trail {
		cfg.Output.DrawTrail = true
	}
	components := pipeline.Components[gocv.Mat]{
		Source:     capture,
		Regions:    regions,
		Landmarks:  landmarks,
		Compositor: buildCompositor(cfg),
	}
	if cfg.Flow.Enabled && !opts.NoFlow {
		flow := buildFlow(cfg)
		res = append(res, flow)
		components.Flow = flow
	}

	if opts.Output != "" {
		recorder, err := vision.NewRecorder(opts.Output, capture.FPS(cfg.Output.FPS), capture.Size())
		if err != nil {
			return err
		}
		res = append(res, recorder)
		components.Observers = append(components.Observers, recorder)
	}

	if opts.SnapshotDir != "" {
		cfg.Output.SnapshotDir = opts.SnapshotDir
	}
	if opts.SnapshotFormat != "" {
		cfg.Output.SnapshotFormat = opts.SnapshotFormat
	}
	if opts.SnapshotInterval > 0 {
		cfg.Output.SnapshotInterval = config.Duration(opts.SnapshotInterval)
	}
	var still *vision.StillCapture
	if cfg.Output.SnapshotDir != "" {
		still, err = vision.NewStillCapture(vision.StillConfig{
			Dir:      cfg.Output.SnapshotDir,
			Format:   cfg.Output.SnapshotFormat,
			Interval: time.Duration(cfg.Output.SnapshotInterval),
		})
		if err != nil {
			return err
		}
		components.Observers = append(components.Observers, still)
		go requestOnEnter(cmd.Context(), cmd.InOrStdin(), still)
	}

	collector := jitter.NewCollector()
	components.Observers = append(components.Observers, jitter.Observer[gocv.Mat](collector))

	var bar *progressbar.ProgressBar
	if total := capture.FrameCount(); total > 0 && !device {
		bar = progressbar.NewOptions(total,
			progressbar.OptionSetDescription("Tracking noses"),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
		)
		components.Observers = append(components.Observers, pipeline.ObserverFunc[gocv.Mat](func(frame *gocv.Mat, index int, tracks []mot.TrackSnapshot) error {
			return bar.Add(1)
		}))
	}

	p, err := pipeline.New(tracker, components, cfg.PipelineParams(), log.With("component", "pipeline"))
	if err != nil {
		return err
	}

	logger.Info("starting", "input", opts.Input, "camera", device, "detector", cfg.Detector.Backend, "landmarks", cfg.Landmarks.Backend, "flow", components.Flow != nil)
	started := time.Now()
	runErr := p.Run(cmd.Context())
	if bar != nil {
		bar.Finish()
	}
	stats := p.Stats()
	logger.Info("finished",
		"frames", stats.Frames,
		"detection_cycles", stats.DetectionCycles,
		"flow_failures", stats.FlowFailures,
		"elapsed", time.Since(started).Round(time.Millisecond),
	)
	if still != nil {
		logger.Info("stills saved", "dir", cfg.Output.SnapshotDir, "count", len(still.Saved()))
	}
	if runErr != nil {
		return runErr
	}
	if opts.Report {
		printJitter(collector.Report())
	}
	return nil
}

type stillRequester interface {
	Request()
}

// requestOnEnter asks for a still on every line read from r until r ends or ctx is done
func requestOnEnter(ctx context.Context, r io.Reader, still stillRequester) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		still.Request()
	}
}

func printJitter(report []jitter.TrackStats) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "TRACK\tFRAMES\tRADIUS\tRADIUS SD\tSTEP\tSTEP SD\tSTEP MAX")
	for _, ts := range report {
		fmt.Fprintf(w, "%s\t%d\t%.2f\t%.3f\t%.2f\t%.3f\t%.2f\n",
			ts.ID.String()[:8], ts.Frames, ts.RadiusMean, ts.RadiusStdDev, ts.StepMean, ts.StepStdDev, ts.StepMax)
	}
	w.Flush()
}
