package ipc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/deskrec/pkg/sources"
)

func serve(t *testing.T, bus *Bus, h Handler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = bus.Serve(ctx, h)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
}

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(8)
	var (
		mu   sync.Mutex
		seen []Message
	)
	serve(t, bus, HandlerFunc(func(_ context.Context, msg Message) Reply {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, msg)
		return Reply{Kind: msg.Kind, Status: StatusSuccess}
	}))

	ctx := context.Background()
	require.NoError(t, bus.Send(ctx, MouseMove(1, 2)))
	require.NoError(t, bus.Send(ctx, KeyboardInput("a")))
	reply := bus.Request(ctx, StopRecording(), time.Second)
	require.True(t, reply.OK())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Message{MouseMove(1, 2), KeyboardInput("a"), StopRecording()}, seen)
}

func TestRequestReturnsHandlerReply(t *testing.T) {
	bus := NewBus(1)
	serve(t, bus, HandlerFunc(func(_ context.Context, msg Message) Reply {
		return Reply{Kind: KindSetSource, Status: StatusSuccess, Source: sources.SourceHandle{ID: "screen:0:0"}}
	}))

	reply := bus.Request(context.Background(), StartRecording(), time.Second)
	assert.Equal(t, KindSetSource, reply.Kind)
	assert.Equal(t, "screen:0:0", reply.Source.ID)
}

func TestRequestTimesOut(t *testing.T) {
	bus := NewBus(1)
	release := make(chan struct{})
	serve(t, bus, HandlerFunc(func(ctx context.Context, msg Message) Reply {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return Reply{Status: StatusSuccess}
	}))
	t.Cleanup(func() { close(release) })

	reply := bus.Request(context.Background(), StartRecording(), 20*time.Millisecond)
	assert.Equal(t, StatusTimeout, reply.Status)
	assert.ErrorIs(t, reply.Err, context.DeadlineExceeded)
}

func TestRequestTimeoutCancelsHandler(t *testing.T) {
	bus := NewBus(1)
	cancelled := make(chan error, 1)
	serve(t, bus, HandlerFunc(func(ctx context.Context, msg Message) Reply {
		<-ctx.Done()
		cancelled <- ctx.Err()
		return Reply{Kind: msg.Kind, Status: StatusSuccess}
	}))

	reply := bus.Request(context.Background(), StartRecording(), 20*time.Millisecond)
	assert.Equal(t, StatusTimeout, reply.Status)

	select {
	case err := <-cancelled:
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	case <-time.After(time.Second):
		t.Fatal("handler context was not cancelled")
	}
}

func TestExpiredRequestIsNotHandled(t *testing.T) {
	bus := NewBus(4)
	release := make(chan struct{})
	var (
		mu      sync.Mutex
		handled []Kind
	)
	serve(t, bus, HandlerFunc(func(ctx context.Context, msg Message) Reply {
		if msg.Kind == KindMouseMove {
			<-release
		}
		mu.Lock()
		handled = append(handled, msg.Kind)
		mu.Unlock()
		return Reply{Kind: msg.Kind, Status: StatusSuccess}
	}))

	ctx := context.Background()
	require.NoError(t, bus.Send(ctx, MouseMove(0, 0)))
	reply := bus.Request(ctx, StartRecording(), 20*time.Millisecond)
	assert.Equal(t, StatusTimeout, reply.Status)
	close(release)

	require.True(t, bus.Request(ctx, StopRecording(), time.Second).OK())
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []Kind{KindMouseMove, KindStopRecording}, handled)
}

func TestClosedBusRejects(t *testing.T) {
	bus := NewBus(1)
	bus.Close()
	bus.Close()

	assert.ErrorIs(t, bus.Send(context.Background(), MouseMove(0, 0)), ErrClosed)
	reply := bus.Request(context.Background(), StartRecording(), time.Second)
	assert.Equal(t, StatusError, reply.Status)
	assert.ErrorIs(t, reply.Err, ErrClosed)
	assert.NoError(t, bus.Serve(context.Background(), HandlerFunc(func(context.Context, Message) Reply { return Reply{} })))
}
