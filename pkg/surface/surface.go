// Package surface is the capture half of a recording: it asks the session
// controller to start, runs the media pipeline on the source it is handed,
// forwards user input over the bus, and persists the media blob at stop.
package surface

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/offlinefirst/deskrec/pkg/events"
	"github.com/offlinefirst/deskrec/pkg/ipc"
	"github.com/offlinefirst/deskrec/pkg/media"
	"github.com/offlinefirst/deskrec/pkg/sources"
)

const defaultRequestTimeout = 15 * time.Second

// Bus is the part of ipc.Bus the surface depends on.
type Bus interface {
	Send(ctx context.Context, msg ipc.Message) error
	Request(ctx context.Context, msg ipc.Message, timeout time.Duration) ipc.Reply
}

// Options configure a Surface.
type Options struct {
	Bus      Bus
	Recorder *media.Recorder
	Sink     media.Sink
	Settings media.Settings
	// Input is optional; without it only media is captured.
	Input events.Source
	// Compressor is optional; when set the finalized blob is re-encoded
	// before saving, falling back to the raw blob if it fails.
	Compressor     media.Compressor
	Logger         *slog.Logger
	RequestTimeout time.Duration
}

// StartResult reports what the privileged side granted.
type StartResult struct {
	SessionID string
	Source    sources.SourceHandle
	// MediaErr is set when the pipeline failed to start. The session still runs.
	MediaErr error
}

// StopResult reports both persisted artifacts.
type StopResult struct {
	MediaPath  string
	MediaBytes int
	Compressed bool
	LogPath    string
	Samples    int
	SessionID  string
}

// ErrStartRejected wraps non-success replies to start-recording.
var ErrStartRejected = errors.New("start-recording refused")

// RequestError carries the reply status of a failed control request.
type RequestError struct {
	Kind   ipc.Kind
	Status ipc.Status
	Err    error
}

func (e *RequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Status)
}

func (e *RequestError) Unwrap() error { return e.Err }

// Surface drives one recording from the capture side.
type Surface struct {
	bus        Bus
	recorder   *media.Recorder
	sink       media.Sink
	compressor media.Compressor
	settings   media.Settings
	input      events.Source
	logger     *slog.Logger
	timeout    time.Duration

	mu        sync.Mutex
	sessionID string
}

// New validates options and returns a Surface.
func New(opts Options) (*Surface, error) {
	if opts.Bus == nil {
		return nil, errors.New("surface: bus is required")
	}
	if opts.Recorder == nil {
		return nil, errors.New("surface: media recorder is required")
	}
	if opts.Sink == nil {
		return nil, errors.New("surface: media sink is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Surface{
		bus:        opts.Bus,
		recorder:   opts.Recorder,
		sink:       opts.Sink,
		compressor: opts.Compressor,
		settings:   opts.Settings,
		input:      opts.Input,
		logger:     logger,
		timeout:    timeout,
	}, nil
}

// Start requests a session and starts the pipeline on the granted source.
// Pipeline failures are logged and reported in the result without failing
// the session.
func (s *Surface) Start(ctx context.Context) (StartResult, error) {
	reply := s.bus.Request(ctx, ipc.StartRecording(), s.timeout)
	if !reply.OK() {
		if reply.Status == ipc.StatusTimeout {
			// A late start may still have won; make sure nothing is left recording.
			if stop := s.bus.Request(context.WithoutCancel(ctx), ipc.StopRecording(), s.timeout); !stop.OK() {
				s.logger.Warn("stop after start timeout failed", "status", stop.Status, "error", stop.Err)
			}
		}
		return StartResult{}, &RequestError{Kind: ipc.KindStartRecording, Status: reply.Status, Err: errors.Join(ErrStartRejected, reply.Err)}
	}

	s.mu.Lock()
	s.sessionID = reply.SessionID
	s.mu.Unlock()

	result := StartResult{SessionID: reply.SessionID, Source: reply.Source}
	constraints, err := media.BuildConstraints(reply.Source, s.settings)
	if err == nil {
		err = s.recorder.Start(ctx, constraints)
	}
	if err != nil {
		s.logger.Error("media capture did not start; continuing session", "session_id", reply.SessionID, "error", err)
		result.MediaErr = err
	}
	return result, nil
}

// Track streams input to the privileged side until ctx ends or the source
// finishes. A stop requested from the input source is returned as
// events.ErrStopRequested.
func (s *Surface) Track(ctx context.Context) error {
	if s.input == nil {
		<-ctx.Done()
		return nil
	}
	err := s.input.Stream(ctx, func(in events.Input) error {
		var msg ipc.Message
		switch in.Kind {
		case events.InputMouse:
			msg = ipc.MouseMove(in.X, in.Y)
		case events.InputKey:
			msg = ipc.KeyboardInput(in.Key)
		default:
			return nil
		}
		return s.bus.Send(ctx, msg)
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Stop finalizes the pipeline, optionally compresses the blob, persists it
// through the sink, then asks the privileged side to end the session. It
// tolerates a pipeline that never started. Both persistence failures are
// returned.
func (s *Surface) Stop(ctx context.Context) (StopResult, error) {
	var result StopResult
	var errs []error

	blob, err := s.recorder.Finalize(ctx)
	if err != nil {
		s.logger.Warn("media pipeline reported an error at stop", "error", err)
	}
	if len(blob) > 0 && s.compressor != nil {
		compressed, err := s.compressor.Compress(ctx, blob)
		if err != nil {
			s.logger.Warn("compression failed; saving raw recording", "error", err)
		} else {
			blob = compressed
			result.Compressed = true
		}
	}
	if len(blob) > 0 {
		path, err := s.sink.Save(ctx, blob)
		if err != nil {
			s.logger.Error("media not persisted", "error", err)
			errs = append(errs, fmt.Errorf("save media: %w", err))
		} else {
			result.MediaPath = path
			result.MediaBytes = len(blob)
			s.logger.Info("media saved", "path", path, "bytes", len(blob))
		}
	} else {
		s.logger.Warn("no media captured")
	}

	reply := s.bus.Request(ctx, ipc.StopRecording(), s.timeout)
	if !reply.OK() {
		errs = append(errs, &RequestError{Kind: ipc.KindStopRecording, Status: reply.Status, Err: reply.Err})
	}
	result.LogPath = reply.LogPath
	result.Samples = reply.Samples
	result.SessionID = reply.SessionID

	s.mu.Lock()
	if result.SessionID == "" {
		result.SessionID = s.sessionID
	}
	s.sessionID = ""
	s.mu.Unlock()

	return result, errors.Join(errs...)
}
