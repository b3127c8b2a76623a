// Package capture runs one recording end to end: it serves the session
// controller on an in-process bus, drives the capture surface against it and
// stops on request, on a duration limit or when ctx ends.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/offlinefirst/deskrec/pkg/config"
	"github.com/offlinefirst/deskrec/pkg/events"
	"github.com/offlinefirst/deskrec/pkg/ipc"
	"github.com/offlinefirst/deskrec/pkg/layout"
	"github.com/offlinefirst/deskrec/pkg/media"
	"github.com/offlinefirst/deskrec/pkg/permissions"
	"github.com/offlinefirst/deskrec/pkg/session"
	"github.com/offlinefirst/deskrec/pkg/sources"
	"github.com/offlinefirst/deskrec/pkg/surface"
)

const (
	busCapacity     = 256
	shutdownTimeout = 30 * time.Second
)

// Options controls capture orchestration.
type Options struct {
	Config  config.Config
	Layout  layout.Layout
	Logger  *slog.Logger
	Clock   func() time.Time
	Meter   metric.Meter
	Tracer  trace.Tracer
	Control *Controller
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv permissions.LookupEnvFunc
	// MaxDuration overrides capture.max_duration_seconds when positive.
	MaxDuration time.Duration

	// Enumerator, Pipeline, Input and Compressor replace the detected
	// implementations. Compressor is only consulted when capture.compress is set.
	Enumerator sources.Enumerator
	Pipeline   media.Pipeline
	Input      events.Source
	Compressor media.Compressor
}

// Plan reports what a run would use without starting anything.
type Plan struct {
	Layout   layout.Layout
	Settings media.Settings
	Media    media.Environment
	Input    events.Environment
	Output   string
}

// Summary reports the results of a completed recording.
type Summary struct {
	SessionID     string
	Source        sources.SourceHandle
	MediaProvider string
	InputProvider string
	MediaPath     string
	MediaBytes    int
	Compressed    bool
	MediaErr      error
	LogPath       string
	Samples       int
	Duration      time.Duration
	StopReason    error
}

// Prepare resolves the capture backends for opts.
func Prepare(opts Options) Plan {
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	c := opts.Config.Capture
	return Plan{
		Layout: opts.Layout,
		Settings: media.Settings{
			Resolution: c.Resolution,
			FrameRate:  c.FrameRate,
			Bitrate:    c.Bitrate,
			MimeType:   c.MimeType,
		},
		Media: media.DetectEnvironment(media.DetectOptions{
			Backend:   c.Backend,
			Binary:    c.FFmpegBinary,
			LookupEnv: lookup,
		}),
		Input:  events.DetectEnvironment(c.Input, lookup),
		Output: c.OutputMode,
	}
}

// Run records a single session and blocks until it has been stopped and
// both artifacts have been persisted.
func Run(ctx context.Context, opts Options) (Summary, error) {
	if opts.Logger == nil {
		return Summary{}, errors.New("logger must be provided")
	}
	logger := opts.Logger
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	lookup := opts.LookupEnv
	if lookup == nil {
		lookup = os.LookupEnv
	}
	control := opts.Control
	if control == nil {
		control = NewController()
	}
	plan := Prepare(opts)
	capCfg := opts.Config.Capture

	if err := layout.EnsureFilesystem(opts.Layout, false); err != nil {
		return Summary{}, err
	}

	enumerator := opts.Enumerator
	if enumerator == nil {
		enumerator = sources.DisplayEnumerator{LookupEnv: lookup}
	}
	selector, err := sources.NewSelector(sources.Options{
		Enumerator: enumerator,
		Timeout:    time.Duration(capCfg.AcquireTimeoutSeconds) * time.Second,
		Retries:    capCfg.AcquireRetries,
		Permission: func() permissions.ProbeResult { return permissions.ProbeScreenCapture(lookup) },
		Logger:     logger,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("initialise source selector: %w", err)
	}

	controller, err := session.NewController(session.Options{
		Selector: selector,
		LogPath:  opts.Layout.SessionLogPath,
		Clock:    clock,
		Logger:   logger,
		Meter:    opts.Meter,
		Tracer:   opts.Tracer,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("initialise session controller: %w", err)
	}

	pipeline := opts.Pipeline
	if pipeline == nil {
		pipeline, err = media.NewPipeline(plan.Media, logger)
		if err != nil {
			return Summary{}, fmt.Errorf("initialise capture pipeline: %w", err)
		}
		if sp, ok := pipeline.(*media.SyntheticPipeline); ok && capCfg.TimesliceMillis > 0 {
			sp.Timeslice = time.Duration(capCfg.TimesliceMillis) * time.Millisecond
		}
	}
	recorder, err := media.NewRecorder(pipeline, media.RecorderOptions{Logger: logger, Meter: opts.Meter})
	if err != nil {
		return Summary{}, fmt.Errorf("initialise media recorder: %w", err)
	}
	sink, err := media.NewSink(media.SinkOptions{
		Mode:     capCfg.OutputMode,
		FilePath: opts.Layout.MediaPath,
		Reveal:   capCfg.RevealDownload,
		Logger:   logger,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("initialise media sink: %w", err)
	}

	var compressor media.Compressor
	if capCfg.Compress {
		compressor = opts.Compressor
		if compressor == nil {
			compressor = media.NewFFmpegCompressor(capCfg.FFmpegBinary, capCfg.CompressCRF, logger)
		}
	}

	input := opts.Input
	inputProvider := "custom"
	if input == nil {
		input = plan.Input.Source()
		inputProvider = plan.Input.Provider
		if !plan.Input.Available {
			logger.Warn("input listener unavailable; recording media only", "provider", plan.Input.Provider, "reason", plan.Input.Message)
			inputProvider = events.ProviderNone
		}
	}

	bus := ipc.NewBus(busCapacity)
	serveCtx, stopServing := context.WithCancel(context.WithoutCancel(ctx))
	var serving sync.WaitGroup
	serving.Add(1)
	go func() {
		defer serving.Done()
		if err := bus.Serve(serveCtx, controller); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, ipc.ErrClosed) {
			logger.Error("session bus stopped", "error", err)
		}
	}()
	defer func() {
		stopServing()
		serving.Wait()
		bus.Close()
	}()

	surf, err := surface.New(surface.Options{
		Bus:        bus,
		Recorder:   recorder,
		Sink:       sink,
		Settings:   plan.Settings,
		Input:      input,
		Compressor: compressor,
		Logger:     logger,
	})
	if err != nil {
		return Summary{}, fmt.Errorf("initialise capture surface: %w", err)
	}

	summary := Summary{MediaProvider: plan.Media.Provider, InputProvider: inputProvider}
	if opts.Pipeline != nil {
		summary.MediaProvider = "custom"
	}

	logger.Info("starting recording", "media_provider", summary.MediaProvider, "input_provider", summary.InputProvider, "output_mode", plan.Output)
	started, err := surf.Start(ctx)
	if err != nil {
		return summary, fmt.Errorf("start recording: %w", err)
	}
	summary.SessionID = started.SessionID
	summary.Source = started.Source
	summary.MediaErr = started.MediaErr
	begin := clock()

	maxDuration := opts.MaxDuration
	if maxDuration <= 0 && capCfg.MaxDurationSeconds > 0 {
		maxDuration = time.Duration(capCfg.MaxDurationSeconds) * time.Second
	}
	if maxDuration > 0 {
		timer := time.AfterFunc(maxDuration, func() { control.Stop(ErrMaxDuration) })
		defer timer.Stop()
	}

	trackCtx, stopTracking := context.WithCancel(ctx)
	tracking := make(chan struct{})
	go func() {
		defer close(tracking)
		err := surf.Track(trackCtx)
		switch {
		case errors.Is(err, events.ErrStopRequested):
			control.Stop(err)
		case err != nil:
			logger.Error("input listener stopped", "error", err)
		}
	}()

	summary.StopReason = control.Wait(ctx)
	stopTracking()
	<-tracking
	logger.Info("stopping recording", "session_id", summary.SessionID, "reason", summary.StopReason.Error())

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	res, err := surf.Stop(stopCtx)
	summary.MediaPath = res.MediaPath
	summary.MediaBytes = res.MediaBytes
	summary.Compressed = res.Compressed
	summary.LogPath = res.LogPath
	summary.Samples = res.Samples
	summary.Duration = clock().Sub(begin)
	if err != nil {
		return summary, fmt.Errorf("stop recording: %w", err)
	}
	logger.Info("recording complete",
		"session_id", summary.SessionID,
		"media", opts.Layout.Relative(summary.MediaPath),
		"log", opts.Layout.Relative(summary.LogPath),
		"samples", summary.Samples,
	)
	return summary, nil
}
