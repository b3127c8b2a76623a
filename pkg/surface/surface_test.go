package surface

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/deskrec/pkg/events"
	"github.com/offlinefirst/deskrec/pkg/ipc"
	"github.com/offlinefirst/deskrec/pkg/logging"
	"github.com/offlinefirst/deskrec/pkg/media"
	"github.com/offlinefirst/deskrec/pkg/session"
	"github.com/offlinefirst/deskrec/pkg/sources"
)

type harness struct {
	bus        *ipc.Bus
	controller *session.Controller
	logPath    string
	mediaPath  string
}

func newHarness(t *testing.T, enum sources.Enumerator) *harness {
	t.Helper()
	sel, err := sources.NewSelector(sources.Options{Enumerator: enum, Logger: logging.Discard()})
	require.NoError(t, err)
	return newHarnessWithSelector(t, sel)
}

func newHarnessWithSelector(t *testing.T, sel session.SourceSelector) *harness {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "recording_data.json")
	controller, err := session.NewController(session.Options{Selector: sel, LogPath: logPath, Logger: logging.Discard()})
	require.NoError(t, err)

	bus := ipc.NewBus(16)
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = bus.Serve(ctx, controller)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return &harness{bus: bus, controller: controller, logPath: logPath, mediaPath: filepath.Join(dir, "screen-recording.webm")}
}

func (h *harness) surface(t *testing.T, pipeline media.Pipeline, input events.Source) *Surface {
	t.Helper()
	return h.surfaceWithTimeout(t, pipeline, input, 0)
}

func (h *harness) surfaceWithTimeout(t *testing.T, pipeline media.Pipeline, input events.Source, timeout time.Duration) *Surface {
	t.Helper()
	return h.newSurface(t, Options{Input: input, RequestTimeout: timeout}, pipeline)
}

func (h *harness) newSurface(t *testing.T, opts Options, pipeline media.Pipeline) *Surface {
	t.Helper()
	rec, err := media.NewRecorder(pipeline, media.RecorderOptions{Logger: logging.Discard()})
	require.NoError(t, err)
	opts.Bus = h.bus
	opts.Recorder = rec
	opts.Sink = media.FileSink{Path: h.mediaPath}
	opts.Settings = media.Settings{Resolution: "1080p", FrameRate: 60, Bitrate: 2500000}
	opts.Logger = logging.Discard()
	s, err := New(opts)
	require.NoError(t, err)
	return s
}

var oneScreen = sources.StaticEnumerator{{ID: "screen:0:0", Name: "Entire Screen", Kind: sources.KindScreen}}

func TestRecordingWithoutEventsPersistsBothArtifacts(t *testing.T) {
	h := newHarness(t, oneScreen)
	pipeline := media.NewSyntheticPipeline(logging.Discard())
	pipeline.Timeslice = 20 * time.Millisecond
	s := h.surface(t, pipeline, nil)
	ctx := context.Background()

	started, err := s.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, started.MediaErr)
	assert.Equal(t, "screen:0:0", started.Source.ID)

	time.Sleep(60 * time.Millisecond)
	res, err := s.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, started.SessionID, res.SessionID)

	blob, err := os.ReadFile(h.mediaPath)
	require.NoError(t, err)
	assert.NotEmpty(t, blob)
	assert.True(t, bytes.HasPrefix(blob, []byte{0x1a, 0x45, 0xdf, 0xa3}))

	log, err := events.Load(h.logPath)
	require.NoError(t, err)
	assert.Empty(t, log.MousePositions)
	assert.Empty(t, log.KeyboardInputs)
	assert.NotNil(t, log.StartTime)
}

func TestTrackForwardsInput(t *testing.T) {
	h := newHarness(t, oneScreen)
	input := &events.SyntheticSource{
		Timeline: events.DefaultTimeline(),
		Sleep:    func(context.Context, time.Duration) error { return nil },
	}
	s := h.surface(t, &stubPipeline{}, input)
	ctx := context.Background()

	_, err := s.Start(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Track(ctx))

	res, err := s.Stop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Samples)

	log, err := events.Load(h.logPath)
	require.NoError(t, err)
	require.Len(t, log.MousePositions, 2)
	require.Len(t, log.KeyboardInputs, 1)
	assert.Equal(t, "a", log.KeyboardInputs[0].Key)

	data, err := os.ReadFile(h.mediaPath)
	require.NoError(t, err)
	assert.Equal(t, "stub-media", string(data))
}

func TestStartWithoutSourcesIsCapabilityError(t *testing.T) {
	h := newHarness(t, sources.StaticEnumerator{})
	pipeline := &stubPipeline{}
	s := h.surface(t, pipeline, nil)
	ctx := context.Background()

	_, err := s.Start(ctx)
	require.Error(t, err)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, ipc.StatusCapabilityError, reqErr.Status)
	assert.ErrorIs(t, err, sources.ErrNoSourceAvailable)
	assert.ErrorIs(t, err, ErrStartRejected)
	assert.False(t, h.controller.Active())
	assert.Zero(t, pipeline.starts)

	res, err := s.Stop(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.MediaPath)
	_, statErr := os.Stat(h.logPath)
	assert.True(t, os.IsNotExist(statErr))
}

type slowSelector struct {
	delay time.Duration
	calls chan struct{}
}

// Select ignores ctx so a late success is observable.
func (s *slowSelector) Select(context.Context) (sources.SourceHandle, error) {
	time.Sleep(s.delay)
	s.calls <- struct{}{}
	return oneScreen[0], nil
}

func TestStartTimeoutLeavesNoSessionRunning(t *testing.T) {
	sel := &slowSelector{delay: 100 * time.Millisecond, calls: make(chan struct{}, 1)}
	h := newHarnessWithSelector(t, sel)
	pipeline := &stubPipeline{}
	s := h.surfaceWithTimeout(t, pipeline, nil, 20*time.Millisecond)
	ctx := context.Background()

	_, err := s.Start(ctx)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, ipc.StatusTimeout, reqErr.Status)

	select {
	case <-sel.calls:
	case <-time.After(time.Second):
		t.Fatal("selector never ran")
	}
	assert.Eventually(t, func() bool {
		reply := h.bus.Request(ctx, ipc.MouseMove(1, 1), time.Second)
		return reply.Status == ipc.StatusRejected
	}, time.Second, 10*time.Millisecond)
	assert.False(t, h.controller.Active())
	assert.Zero(t, pipeline.starts)
	_, statErr := os.Stat(h.logPath)
	assert.True(t, os.IsNotExist(statErr))
}

func TestPipelineFailureKeepsSessionRunning(t *testing.T) {
	h := newHarness(t, oneScreen)
	s := h.surface(t, &stubPipeline{startErr: errors.New("no display")}, nil)
	ctx := context.Background()

	started, err := s.Start(ctx)
	require.NoError(t, err)
	assert.Error(t, started.MediaErr)
	assert.True(t, h.controller.Active())

	res, err := s.Stop(ctx)
	require.NoError(t, err)
	assert.Empty(t, res.MediaPath)
	assert.False(t, h.controller.Active())
	_, err = os.Stat(h.logPath)
	assert.NoError(t, err)
}

type compressorFunc func(context.Context, []byte) ([]byte, error)

func (f compressorFunc) Compress(ctx context.Context, blob []byte) ([]byte, error) {
	return f(ctx, blob)
}

func TestStopCompressesBeforeSaving(t *testing.T) {
	h := newHarness(t, oneScreen)
	var got []byte
	s := h.newSurface(t, Options{Compressor: compressorFunc(func(_ context.Context, blob []byte) ([]byte, error) {
		got = append([]byte(nil), blob...)
		return []byte("small"), nil
	})}, &stubPipeline{})
	ctx := context.Background()

	_, err := s.Start(ctx)
	require.NoError(t, err)
	res, err := s.Stop(ctx)
	require.NoError(t, err)
	assert.True(t, res.Compressed)
	assert.Equal(t, "stub-media", string(got))
	assert.Equal(t, 5, res.MediaBytes)

	data, err := os.ReadFile(h.mediaPath)
	require.NoError(t, err)
	assert.Equal(t, "small", string(data))
}

func TestCompressionFailureSavesRawBlob(t *testing.T) {
	h := newHarness(t, oneScreen)
	s := h.newSurface(t, Options{Compressor: compressorFunc(func(context.Context, []byte) ([]byte, error) {
		return nil, media.ErrEmptyOutput
	})}, &stubPipeline{})
	ctx := context.Background()

	_, err := s.Start(ctx)
	require.NoError(t, err)
	res, err := s.Stop(ctx)
	require.NoError(t, err)
	assert.False(t, res.Compressed)

	data, err := os.ReadFile(h.mediaPath)
	require.NoError(t, err)
	assert.Equal(t, "stub-media", string(data))
	_, err = os.Stat(h.logPath)
	assert.NoError(t, err)
}

func TestTrackWithoutInputWaitsForContext(t *testing.T) {
	h := newHarness(t, oneScreen)
	s := h.surface(t, &stubPipeline{}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.NoError(t, s.Track(ctx))
}

func TestNewValidates(t *testing.T) {
	_, err := New(Options{})
	assert.Error(t, err)
}

type stubPipeline struct {
	mu       sync.Mutex
	emit     func([]byte)
	startErr error
	starts   int
}

func (p *stubPipeline) Start(_ context.Context, _ media.Constraints, emit func([]byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startErr != nil {
		return p.startErr
	}
	p.starts++
	p.emit = emit
	return nil
}

func (p *stubPipeline) Stop(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.emit != nil {
		p.emit([]byte("stub-media"))
	}
	return nil
}
