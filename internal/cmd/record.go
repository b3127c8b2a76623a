package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/offlinefirst/deskrec/pkg/capture"
	"github.com/offlinefirst/deskrec/pkg/media"
)

var captureRun = capture.Run

type recordOptions struct {
	planOnly bool
	duration time.Duration
}

func (rc *RootCommand) newRecordCommand() *cobra.Command {
	opts := &recordOptions{}

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record the screen and input until stopped",
		Long: `Record the first available screen together with mouse and keyboard input.
Press Ctrl-C (or Ctrl-D in the terminal listener) to stop. The media file and
the session log are written to the output directory when the recording ends.`,
		Example: `  deskrec record
  deskrec record --resolution 720p --frame-rate 30 --duration 30s
  deskrec record --output-mode download --backend ffmpeg
  deskrec record --plan-only`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rc.runRecord(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVar(&opts.planOnly, "plan-only", false, "Print the resolved configuration and backends without recording")
	flags.DurationVar(&opts.duration, "duration", 0, "Stop automatically after this long (0 records until interrupted)")
	flags.String("output-dir", "", "Directory receiving the media file and session log")
	flags.String("resolution", "", "Capture resolution (4k, 2k, 1080p, 720p)")
	flags.Int("frame-rate", 0, "Ideal capture frame rate")
	flags.Int("bitrate", 0, "Target video bitrate in bits per second")
	flags.String("output-mode", "", "Where the media file goes (file, download)")
	flags.String("backend", "", "Capture backend (auto, ffmpeg, synthetic)")
	flags.String("input", "", "Input listener (auto, terminal, synthetic, none)")
	flags.Bool("compress", false, "Re-encode the finished recording with ffmpeg before saving")
	rc.bindFlags(flags, map[string]string{
		"output-dir":  "paths.output_dir",
		"resolution":  "capture.resolution",
		"frame-rate":  "capture.frame_rate",
		"bitrate":     "capture.bitrate",
		"output-mode": "capture.output_mode",
		"backend":     "capture.backend",
		"input":       "capture.input",
		"compress":    "capture.compress",
	})

	names := make([]string, 0, 4)
	for _, r := range media.Resolutions() {
		names = append(names, r.Name)
	}
	_ = cmd.RegisterFlagCompletionFunc("resolution", fixedCompletions(names...))
	_ = cmd.RegisterFlagCompletionFunc("output-mode", fixedCompletions(media.OutputFile, media.OutputDownload))
	_ = cmd.RegisterFlagCompletionFunc("backend", fixedCompletions("auto", media.ProviderFFmpeg, media.ProviderSynthetic))
	_ = cmd.RegisterFlagCompletionFunc("input", fixedCompletions("auto", "terminal", "synthetic", "none"))

	return cmd
}

func (rc *RootCommand) runRecord(ctx context.Context, opts *recordOptions) error {
	app, err := rc.ensureAppContext(ctx)
	if err != nil {
		return err
	}

	runOpts := capture.Options{
		Config:      app.Config,
		Layout:      app.Layout,
		Logger:      app.Logger,
		Clock:       timeNow,
		Meter:       app.Telemetry.Meter,
		Tracer:      app.Telemetry.Tracer,
		MaxDuration: opts.duration,
	}
	app.Logger.Info("record command invoked", "plan_only", opts.planOnly, "output_dir", app.Layout.Root, "config_source", app.Config.Source)

	if opts.planOnly {
		return rc.printPlan(rc.stdout, capture.Prepare(runOpts), app)
	}

	summary, err := captureRun(ctx, runOpts)
	if summary.SessionID != "" {
		printSummary(rc.stdout, summary)
	}
	if err != nil {
		app.Logger.Error("recording failed", "error", err)
		return fmt.Errorf("record: %w", err)
	}
	return nil
}

func (rc *RootCommand) printPlan(out io.Writer, plan capture.Plan, app *AppContext) error {
	fmt.Fprintf(out, "Resolved configuration (source: %s)\n", app.Config.Source)
	settings, err := yaml.Marshal(rc.viper.AllSettings())
	if err != nil {
		return fmt.Errorf("render configuration: %w", err)
	}
	fmt.Fprintf(out, "%s\n", settings)

	fmt.Fprintln(out, "Artifacts:")
	fmt.Fprintf(out, "  session log: %s\n", plan.Layout.SessionLogPath)
	if plan.Output == media.OutputDownload {
		fmt.Fprintf(out, "  media:       download directory (%s)\n", media.DownloadDir())
	} else {
		fmt.Fprintf(out, "  media:       %s\n", plan.Layout.MediaPath)
	}

	fmt.Fprintln(out, "Backends:")
	printBackend(out, "capture", plan.Media.Provider, plan.Media.Available, plan.Media.Permission, plan.Media.Message)
	printBackend(out, "input", plan.Input.Provider, plan.Input.Available, plan.Input.Permission, plan.Input.Message)
	if app.Config.Capture.Compress {
		fmt.Fprintf(out, "  - compression: libvpx-vp9 crf=%d via %s\n", app.Config.Capture.CompressCRF, app.Config.Capture.FFmpegBinary)
	}
	return nil
}

func printBackend(out io.Writer, name, provider string, available bool, permission, message string) {
	state := color.GreenString("available")
	if !available {
		state = color.RedString("unavailable")
	}
	fmt.Fprintf(out, "  - %s: provider=%s %s", name, color.CyanString(provider), state)
	if permission != "" {
		fmt.Fprintf(out, " permission=%s", permission)
	}
	if message != "" {
		fmt.Fprintf(out, " (%s)", message)
	}
	fmt.Fprintln(out)
}

func printSummary(out io.Writer, s capture.Summary) {
	fmt.Fprintln(out, color.New(color.FgGreen, color.Bold).Sprint("Recording finished"))
	fmt.Fprintf(out, "  session:  %s\n", s.SessionID)
	fmt.Fprintf(out, "  source:   %s (%s)\n", s.Source.Name, color.CyanString(s.Source.ID))
	switch {
	case s.MediaPath != "" && s.Compressed:
		fmt.Fprintf(out, "  media:    %s (%d bytes, %s, compressed)\n", s.MediaPath, s.MediaBytes, s.MediaProvider)
	case s.MediaPath != "":
		fmt.Fprintf(out, "  media:    %s (%d bytes, %s)\n", s.MediaPath, s.MediaBytes, s.MediaProvider)
	case s.MediaErr != nil:
		fmt.Fprintf(out, "  media:    %s\n", color.YellowString("not captured: %v", s.MediaErr))
	default:
		fmt.Fprintf(out, "  media:    %s\n", color.YellowString("not captured"))
	}
	if s.LogPath != "" {
		fmt.Fprintf(out, "  log:      %s (%d samples, input %s)\n", s.LogPath, s.Samples, s.InputProvider)
	}
	fmt.Fprintf(out, "  duration: %s\n", s.Duration.Round(time.Millisecond))
	if s.StopReason != nil {
		fmt.Fprintf(out, "  stopped:  %s\n", color.New(color.Faint).Sprint(s.StopReason.Error()))
	}
}
