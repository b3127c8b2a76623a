// Package session owns the recording lifecycle: at most one session is active
// at a time, a start only succeeds once a capture source has been selected,
// and a stop flushes the event log to disk before returning to idle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"

	"github.com/offlinefirst/deskrec/pkg/events"
	"github.com/offlinefirst/deskrec/pkg/sources"
)

// State enumerates the controller lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

// ErrSessionActive is returned when a start arrives while a session is recording.
var ErrSessionActive = errors.New("a recording session is already active")

// SourceSelector picks the capture source for a new session.
type SourceSelector interface {
	Select(ctx context.Context) (sources.SourceHandle, error)
}

// Session is the active recording.
type Session struct {
	ID        string
	StartTime time.Time
	Source    sources.SourceHandle
}

// StopResult describes the flushed session. Stopped is false when Stop found
// nothing to stop.
type StopResult struct {
	Stopped   bool
	SessionID string
	LogPath   string
	Samples   int
	Duration  time.Duration
	Log       events.Log
}

// TimelineEntry captures a state transition.
type TimelineEntry struct {
	State     State
	Reason    string
	Timestamp time.Time
}

// Options configure a Controller.
type Options struct {
	Selector SourceSelector
	// LogPath is the fixed session log file, overwritten on every stop.
	LogPath string
	Clock   func() time.Time
	Logger  *slog.Logger
	Meter   metric.Meter
	Tracer  trace.Tracer
}

// Controller serialises lifecycle transitions and sample recording.
type Controller struct {
	mu       sync.Mutex
	selector SourceSelector
	logPath  string
	clock    func() time.Time
	logger   *slog.Logger
	tracer   trace.Tracer

	events   *events.Logger
	current  *Session
	timeline []TimelineEntry

	started  metric.Int64Counter
	recorded metric.Int64Counter
}

// NewController validates options and returns an idle controller.
func NewController(opts Options) (*Controller, error) {
	if opts.Selector == nil {
		return nil, errors.New("session: source selector is required")
	}
	if opts.LogPath == "" {
		return nil, errors.New("session: log path is required")
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	meter := opts.Meter
	if meter == nil {
		meter = metricnoop.NewMeterProvider().Meter("deskrec/session")
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracenoop.NewTracerProvider().Tracer("deskrec/session")
	}

	started, err := meter.Int64Counter("deskrec.sessions.started", metric.WithDescription("Recording sessions that reached the recording state"))
	if err != nil {
		return nil, fmt.Errorf("create session counter: %w", err)
	}
	recorded, err := meter.Int64Counter("deskrec.samples.recorded", metric.WithDescription("Input samples appended to the session log"))
	if err != nil {
		return nil, fmt.Errorf("create sample counter: %w", err)
	}

	c := &Controller{
		selector: opts.Selector,
		logPath:  opts.LogPath,
		clock:    clock,
		logger:   logger,
		tracer:   tracer,
		events:   events.NewLogger(clock),
		started:  started,
		recorded: recorded,
	}
	c.appendTimeline(StateIdle, "initialised")
	return c, nil
}

// Start selects a capture source and, only if that succeeds, begins a new
// session. A start while recording is rejected with ErrSessionActive and
// leaves the active session untouched.
func (c *Controller) Start(ctx context.Context) (*Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ctx, span := c.tracer.Start(ctx, "session.start")
	defer span.End()

	if c.current != nil {
		c.logger.Warn("start ignored; session already active", "session_id", c.current.ID)
		span.SetStatus(codes.Error, ErrSessionActive.Error())
		return nil, ErrSessionActive
	}

	src, err := c.selector.Select(ctx)
	if err != nil {
		c.logger.Error("capture source unavailable; session not started", "error", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, "source selection failed")
		return nil, fmt.Errorf("select capture source: %w", err)
	}
	// The requester may have given up while the source was being selected.
	if err := ctx.Err(); err != nil {
		c.logger.Warn("start abandoned by requester; session not started", "source_id", src.ID, "error", err)
		span.SetStatus(codes.Error, "start abandoned")
		return nil, fmt.Errorf("select capture source: %w", err)
	}

	now := c.clock()
	sess := &Session{ID: uuid.NewString(), StartTime: now, Source: src}
	c.current = sess
	c.events.Begin(now)
	c.appendTimeline(StateRecording, "start requested")
	c.started.Add(ctx, 1)

	span.SetAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("source.id", src.ID),
	)
	c.logger.Info("recording session started",
		"session_id", sess.ID,
		"source_id", src.ID,
		"source_name", src.Name,
		"start_time", now.UTC().Format(time.RFC3339Nano),
	)
	out := *sess
	return &out, nil
}

// Stop ends the active session and writes the event log to the fixed path.
// The controller returns to idle even when the write fails; the failure is
// returned. Stopping while idle performs no write.
func (c *Controller) Stop(ctx context.Context) (StopResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.current == nil {
		c.logger.Debug("stop ignored; no active session")
		return StopResult{}, nil
	}

	_, span := c.tracer.Start(ctx, "session.stop")
	defer span.End()

	sess := c.current
	c.current = nil
	c.events.End()
	log, err := c.events.Flush(c.logPath)
	c.events.Reset()
	c.appendTimeline(StateIdle, "stop requested")

	result := StopResult{
		Stopped:   true,
		SessionID: sess.ID,
		LogPath:   c.logPath,
		Samples:   log.Len(),
		Duration:  c.clock().Sub(sess.StartTime),
		Log:       log,
	}
	span.SetAttributes(
		attribute.String("session.id", sess.ID),
		attribute.Int("session.samples", result.Samples),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist session log")
		c.logger.Error("session log not persisted", "session_id", sess.ID, "path", c.logPath, "error", err)
		return result, fmt.Errorf("persist session log: %w", err)
	}
	c.logger.Info("recording session stopped",
		"session_id", sess.ID,
		"samples", result.Samples,
		"duration", result.Duration.String(),
		"log_path", c.logPath,
	)
	return result, nil
}

// RecordMouse appends a pointer sample to the active session.
func (c *Controller) RecordMouse(ctx context.Context, x, y float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.events.RecordMouse(x, y) {
		return false
	}
	c.recorded.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "mouse")))
	return true
}

// RecordKey appends a key sample to the active session.
func (c *Controller) RecordKey(ctx context.Context, key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.events.RecordKey(key) {
		return false
	}
	c.recorded.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", "key")))
	return true
}

// Active reports whether a session is recording.
func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// State reports the current lifecycle state.
func (c *Controller) State() State {
	if c.Active() {
		return StateRecording
	}
	return StateIdle
}

// Current returns a copy of the active session, or nil when idle.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	out := *c.current
	return &out
}

// Pending returns the samples buffered for the active session.
func (c *Controller) Pending() []events.Sample {
	return c.events.Samples()
}

// Timeline returns a copy of the recorded state transitions.
func (c *Controller) Timeline() []TimelineEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]TimelineEntry, len(c.timeline))
	copy(out, c.timeline)
	return out
}

// LogPath reports where stops write the event log.
func (c *Controller) LogPath() string {
	return c.logPath
}

func (c *Controller) appendTimeline(state State, reason string) {
	c.timeline = append(c.timeline, TimelineEntry{State: state, Reason: reason, Timestamp: c.clock().UTC()})
}
