package events

import (
	"sync"
	"time"
)

// Sample is one recorded input observation. It is implemented by MouseSample
// and KeySample only.
type Sample interface {
	// Offset reports milliseconds since the session start.
	Offset() int64
	sample()
}

// MouseSample records a pointer position.
type MouseSample struct {
	Timestamp int64
	X         float64
	Y         float64
}

// KeySample records a key identifier.
type KeySample struct {
	Timestamp int64
	Key       string
}

func (m MouseSample) Offset() int64 { return m.Timestamp }
func (k KeySample) Offset() int64   { return k.Timestamp }

func (MouseSample) sample() {}
func (KeySample) sample()   {}

// Logger accumulates samples for the active session. Samples arriving while
// no session is active are dropped.
type Logger struct {
	mu      sync.Mutex
	clock   func() time.Time
	active  bool
	start   time.Time
	samples []Sample
}

// NewLogger returns an idle logger. A nil clock selects time.Now.
func NewLogger(clock func() time.Time) *Logger {
	if clock == nil {
		clock = time.Now
	}
	return &Logger{clock: clock}
}

// Begin marks the logger active with the given session start and drops any
// leftover samples.
func (l *Logger) Begin(start time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = true
	l.start = start
	l.samples = nil
}

// End deactivates the logger. Buffered samples remain until Flush or Reset.
func (l *Logger) End() {
	l.mu.Lock()
	l.active = false
	l.mu.Unlock()
}

// Active reports whether samples are currently accepted.
func (l *Logger) Active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.active
}

// RecordMouse appends a pointer sample and reports whether it was kept.
func (l *Logger) RecordMouse(x, y float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return false
	}
	l.samples = append(l.samples, MouseSample{Timestamp: l.offset(), X: x, Y: y})
	return true
}

// RecordKey appends a key sample and reports whether it was kept.
func (l *Logger) RecordKey(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.active {
		return false
	}
	l.samples = append(l.samples, KeySample{Timestamp: l.offset(), Key: key})
	return true
}

// offset is clamped at zero so a clock step backwards cannot produce negative timestamps.
func (l *Logger) offset() int64 {
	ms := l.clock().Sub(l.start).Milliseconds()
	if ms < 0 {
		return 0
	}
	return ms
}

// Samples returns a copy of the buffered samples in arrival order.
func (l *Logger) Samples() []Sample {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Sample, len(l.samples))
	copy(out, l.samples)
	return out
}

// Snapshot renders the buffered samples and session start as a persistable Log.
func (l *Logger) Snapshot() Log {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Logger) snapshotLocked() Log {
	log := NewLog(l.samples)
	if !l.start.IsZero() {
		ms := l.start.UnixMilli()
		log.StartTime = &ms
	}
	return log
}

// Flush writes the full log to path, overwriting any previous file, then
// clears the buffer. The buffer is cleared even when the write fails.
func (l *Logger) Flush(path string) (Log, error) {
	l.mu.Lock()
	log := l.snapshotLocked()
	l.samples = nil
	l.mu.Unlock()

	if err := WriteLog(path, log); err != nil {
		return log, err
	}
	return log, nil
}

// Reset returns the logger to its idle state.
func (l *Logger) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.active = false
	l.start = time.Time{}
	l.samples = nil
}
