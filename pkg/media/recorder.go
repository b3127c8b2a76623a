package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Buffer is the ordered sequence of chunks collected during one session.
type Buffer struct {
	mu     sync.Mutex
	chunks [][]byte
	size   int
}

// Append stores a copy of chunk. Empty chunks are ignored.
func (b *Buffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	cp := append([]byte(nil), chunk...)
	b.mu.Lock()
	b.chunks = append(b.chunks, cp)
	b.size += len(cp)
	b.mu.Unlock()
}

// Len reports the number of chunks held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// Size reports the total byte count held.
func (b *Buffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Drain concatenates the chunks into one blob and clears the buffer.
func (b *Buffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	var blob bytes.Buffer
	blob.Grow(b.size)
	for _, c := range b.chunks {
		blob.Write(c)
	}
	b.chunks = nil
	b.size = 0
	return blob.Bytes()
}

// Reset discards all chunks.
func (b *Buffer) Reset() {
	b.mu.Lock()
	b.chunks = nil
	b.size = 0
	b.mu.Unlock()
}

// RecorderOptions configure a Recorder.
type RecorderOptions struct {
	Logger *slog.Logger
	Meter  metric.Meter
}

// Recorder owns one pipeline and the buffer its chunks land in.
type Recorder struct {
	mu        sync.Mutex
	pipeline  Pipeline
	buffer    Buffer
	recording bool
	logger    *slog.Logger
	chunks    metric.Int64Counter
}

// NewRecorder wraps pipeline.
func NewRecorder(pipeline Pipeline, opts RecorderOptions) (*Recorder, error) {
	if pipeline == nil {
		return nil, errors.New("media: pipeline is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	meter := opts.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("deskrec/media")
	}
	chunks, err := meter.Int64Counter("deskrec.media.chunks", metric.WithDescription("Media chunks collected from the capture pipeline"))
	if err != nil {
		return nil, fmt.Errorf("create chunk counter: %w", err)
	}
	return &Recorder{pipeline: pipeline, logger: logger, chunks: chunks}, nil
}

// Start begins capture with the given constraints. A failure leaves the
// recorder idle.
func (r *Recorder) Start(ctx context.Context, c Constraints) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.recording {
		return ErrAlreadyStarted
	}
	r.buffer.Reset()
	if err := r.pipeline.Start(ctx, c, func(chunk []byte) { r.collect(ctx, chunk) }); err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}
	r.recording = true
	r.logger.Info("media pipeline started",
		"source_id", c.Source.ID,
		"width", c.Width,
		"height", c.Height,
		"frame_rate", c.FrameRate.Ideal,
		"bitrate", c.Bitrate,
		"mime_type", c.MimeType,
	)
	return nil
}

func (r *Recorder) collect(ctx context.Context, chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	r.buffer.Append(chunk)
	r.chunks.Add(context.WithoutCancel(ctx), 1)
}

// Recording reports whether a pipeline is running.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Buffered reports the chunk count and byte size collected so far.
func (r *Recorder) Buffered() (chunks, size int) {
	return r.buffer.Len(), r.buffer.Size()
}

// Finalize stops the pipeline and returns the concatenated blob, clearing the
// buffer. Finalizing an idle recorder returns whatever was buffered, usually
// nothing. A pipeline stop error is returned alongside the blob collected so far.
func (r *Recorder) Finalize(ctx context.Context) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return r.buffer.Drain(), nil
	}
	r.recording = false
	stopErr := r.pipeline.Stop(ctx)
	if stopErr != nil {
		r.logger.Warn("media pipeline stop failed", "error", stopErr)
		stopErr = fmt.Errorf("stop pipeline: %w", stopErr)
	}
	chunks, size := r.buffer.Len(), r.buffer.Size()
	blob := r.buffer.Drain()
	r.logger.Info("media pipeline finalized", "chunks", chunks, "bytes", size)
	return blob, stopErr
}
