package events

import (
	"context"
	"time"
)

// InputKind distinguishes pointer and keyboard observations.
type InputKind string

const (
	InputMouse InputKind = "mouse"
	InputKey   InputKind = "key"
)

// Input is one raw observation produced by a listener, before it is stamped
// against the session start.
type Input struct {
	Kind InputKind
	X    float64
	Y    float64
	Key  string
}

// Mouse builds a pointer input.
func Mouse(x, y float64) Input { return Input{Kind: InputMouse, X: x, Y: y} }

// Key builds a keyboard input.
func Key(key string) Input { return Input{Kind: InputKey, Key: key} }

// Source streams user input until the context ends, the emitter fails or the
// user requests a stop (ErrStopRequested).
type Source interface {
	Stream(ctx context.Context, emit func(Input) error) error
}

// SourceFunc adapts a function literal to the Source interface.
type SourceFunc func(ctx context.Context, emit func(Input) error) error

// Stream calls the underlying function.
func (f SourceFunc) Stream(ctx context.Context, emit func(Input) error) error {
	return f(ctx, emit)
}

// TimedInput schedules an input at an offset from the start of streaming.
type TimedInput struct {
	At    time.Duration
	Input Input
}

// DefaultTimeline is the deterministic sequence replayed by SyntheticSource.
func DefaultTimeline() []TimedInput {
	return []TimedInput{
		{At: 0, Input: Mouse(50, 60)},
		{At: 120 * time.Millisecond, Input: Mouse(80, 90)},
		{At: 200 * time.Millisecond, Input: Key("a")},
	}
}

// SyntheticSource replays a fixed timeline. It is used when no interactive
// terminal is attached and by tests.
type SyntheticSource struct {
	Timeline []TimedInput
	// Sleep waits for d or until ctx ends. Defaults to a timer based wait.
	Sleep func(ctx context.Context, d time.Duration) error
}

// NewSyntheticSource returns a source replaying DefaultTimeline.
func NewSyntheticSource() *SyntheticSource {
	return &SyntheticSource{Timeline: DefaultTimeline()}
}

// Stream emits each timeline entry once its offset has elapsed.
func (s *SyntheticSource) Stream(ctx context.Context, emit func(Input) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	sleep := s.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	var elapsed time.Duration
	for _, entry := range s.Timeline {
		if wait := entry.At - elapsed; wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
			elapsed = entry.At
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(entry.Input); err != nil {
			return err
		}
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
