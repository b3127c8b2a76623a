package media

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/at-wat/ebml-go/mkvcore"
	"github.com/at-wat/ebml-go/webm"
)

const (
	// DefaultTimeslice is how often buffered container bytes are emitted.
	DefaultTimeslice = 100 * time.Millisecond

	maxSyntheticFrame = 64 << 10
	minSyntheticFrame = 16
	closeWait         = 2 * time.Second
)

// vp9SyncCode prefixes keyframe payloads so demuxers classify the track as VP9.
var vp9SyncCode = []byte{0x82, 0x49, 0x83, 0x42, 0x00}

// SyntheticPipeline muxes generated VP9 frames into a real WebM container and
// emits the bytes every timeslice. It needs no display or encoder and is the
// fallback backend for headless hosts and tests.
type SyntheticPipeline struct {
	Timeslice time.Duration
	Logger    *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	loop    chan struct{}
	video   webm.BlockWriteCloser
	out     *chunkWriter
	emit    func([]byte)
}

// NewSyntheticPipeline returns a pipeline with the default timeslice.
func NewSyntheticPipeline(logger *slog.Logger) *SyntheticPipeline {
	return &SyntheticPipeline{Timeslice: DefaultTimeslice, Logger: logger}
}

// Start writes the container header and first keyframe, then produces a
// frame per frame interval until Stop.
func (p *SyntheticPipeline) Start(ctx context.Context, c Constraints, emit func([]byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return ErrAlreadyStarted
	}
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "synthetic_pipeline")

	fps := c.FrameRate.Ideal
	if fps <= 0 {
		fps = 30
	}
	frameInterval := time.Second / time.Duration(fps)
	slice := p.Timeslice
	if slice <= 0 {
		slice = DefaultTimeslice
	}

	out := newChunkWriter()
	writers, err := webm.NewSimpleBlockWriter(out, []webm.TrackEntry{
		{
			Name:            "Video",
			TrackNumber:     1,
			TrackUID:        1,
			CodecID:         "V_VP9",
			TrackType:       1,
			DefaultDuration: uint64(frameInterval.Nanoseconds()),
			Video: &webm.Video{
				PixelWidth:  uint64(c.Width),
				PixelHeight: uint64(c.Height),
			},
		},
	}, mkvcore.WithOnFatalHandler(func(err error) {
		logger.Warn("webm writer failed", "error", err)
	}))
	if err != nil {
		return newDeviceError("create webm writer", err)
	}
	video := writers[0]

	size := frameSize(c.Bitrate, fps)
	if _, err := video.Write(true, 0, syntheticFrame(0, size, true)); err != nil {
		_ = video.Close()
		return newDeviceError("write first frame", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	p.running = true
	p.cancel = cancel
	p.loop = make(chan struct{})
	p.video = video
	p.out = out
	p.emit = emit

	go p.run(loopCtx, p.loop, logger, video, out, emit, frameInterval, slice, size, fps)
	logger.Debug("synthetic capture started", "frame_interval", frameInterval, "timeslice", slice, "frame_bytes", size)
	return nil
}

func (p *SyntheticPipeline) run(ctx context.Context, done chan<- struct{}, logger *slog.Logger, video webm.BlockWriteCloser, out *chunkWriter, emit func([]byte), frameInterval, slice time.Duration, size, fps int) {
	defer close(done)

	frames := time.NewTicker(frameInterval)
	defer frames.Stop()
	slices := time.NewTicker(slice)
	defer slices.Stop()

	start := time.Now()
	index := 1
	for {
		select {
		case <-ctx.Done():
			return
		case <-frames.C:
			keyframe := index%fps == 0
			ts := time.Since(start).Milliseconds()
			if _, err := video.Write(keyframe, ts, syntheticFrame(index, size, keyframe)); err != nil {
				logger.Warn("synthetic frame dropped", "frame", index, "error", err)
			}
			index++
		case <-slices.C:
			if chunk := out.drain(); len(chunk) > 0 {
				emit(chunk)
			}
		}
	}
}

// Stop halts frame generation, closes the container and emits the remaining
// bytes. Stopping a pipeline that never started is a no-op.
func (p *SyntheticPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return nil
	}
	p.running = false
	p.cancel()
	<-p.loop

	closeErr := p.video.Close()

	timer := time.NewTimer(closeWait)
	defer timer.Stop()
	select {
	case <-p.out.closed:
	case <-timer.C:
	case <-ctx.Done():
	}

	if chunk := p.out.drain(); len(chunk) > 0 {
		p.emit(chunk)
	}
	if closeErr != nil {
		return newDeviceError("close webm writer", closeErr)
	}
	return nil
}

// frameSize spreads the target bitrate evenly over the frame rate.
func frameSize(bitrate, fps int) int {
	if bitrate <= 0 || fps <= 0 {
		return minSyntheticFrame
	}
	size := bitrate / 8 / fps
	if size < minSyntheticFrame {
		return minSyntheticFrame
	}
	if size > maxSyntheticFrame {
		return maxSyntheticFrame
	}
	return size
}

func syntheticFrame(index, size int, keyframe bool) []byte {
	frame := make([]byte, size)
	for i := range frame {
		frame[i] = byte(index + i)
	}
	if keyframe {
		copy(frame, vp9SyncCode)
	}
	return frame
}

// chunkWriter collects container bytes until drained. The webm writer calls
// Close once every track is closed.
type chunkWriter struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	closed    chan struct{}
	closeOnce sync.Once
}

var _ io.WriteCloser = (*chunkWriter)(nil)

func newChunkWriter() *chunkWriter {
	return &chunkWriter{closed: make(chan struct{})}
}

func (w *chunkWriter) Write(p []byte) (int, error) {
	select {
	case <-w.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *chunkWriter) Close() error {
	w.closeOnce.Do(func() { close(w.closed) })
	return nil
}

func (w *chunkWriter) drain() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, w.buf.Len())
	copy(out, w.buf.Bytes())
	w.buf.Reset()
	return out
}
