// Package ipc carries messages from the surface side, which owns capture and
// input listeners, to the privileged side, which owns the session lifecycle
// and persistence. Samples are fire-and-forget; control signals are
// request/response with an explicit timeout.
package ipc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/offlinefirst/deskrec/pkg/sources"
)

// Kind names a message on the bus.
type Kind string

const (
	KindStartRecording Kind = "start-recording"
	KindStopRecording  Kind = "stop-recording"
	KindMouseMove      Kind = "mouse-move"
	KindKeyboardInput  Kind = "keyboard-input"
	// KindSetSource is the reply to a successful start-recording.
	KindSetSource Kind = "SET_SOURCE"
)

// Status classifies the outcome of a request.
type Status string

const (
	StatusSuccess         Status = "success"
	StatusCapabilityError Status = "capability_error"
	StatusTimeout         Status = "timeout"
	StatusRejected        Status = "rejected"
	StatusError           Status = "error"
)

// Message is one surface to privileged signal.
type Message struct {
	Kind Kind
	X    float64
	Y    float64
	Key  string
}

// StartRecording builds a start-recording request.
func StartRecording() Message { return Message{Kind: KindStartRecording} }

// StopRecording builds a stop-recording request.
func StopRecording() Message { return Message{Kind: KindStopRecording} }

// MouseMove builds a mouse-move sample.
func MouseMove(x, y float64) Message { return Message{Kind: KindMouseMove, X: x, Y: y} }

// KeyboardInput builds a keyboard-input sample.
func KeyboardInput(key string) Message { return Message{Kind: KindKeyboardInput, Key: key} }

// Reply is the privileged side's answer to a request.
type Reply struct {
	Kind      Kind
	Status    Status
	Source    sources.SourceHandle
	SessionID string
	// LogPath and Samples describe the flushed event log after a stop.
	LogPath string
	Samples int
	Err     error
}

// OK reports whether the request succeeded.
func (r Reply) OK() bool { return r.Status == StatusSuccess }

// Handler processes one message. Replies to fire-and-forget messages are discarded.
type Handler interface {
	Handle(ctx context.Context, msg Message) Reply
}

// HandlerFunc adapts a function literal to the Handler interface.
type HandlerFunc func(ctx context.Context, msg Message) Reply

// Handle calls the underlying function.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) Reply {
	return f(ctx, msg)
}

// ErrClosed is returned when sending on a closed bus.
var ErrClosed = errors.New("ipc bus closed")

type envelope struct {
	// ctx is the requester's context; nil for fire-and-forget messages.
	ctx   context.Context
	msg   Message
	reply chan Reply
}

// Bus is an in-process FIFO channel between the two sides. Serve drains it on
// a single goroutine so the handler never runs concurrently with itself.
type Bus struct {
	inbox     chan envelope
	done      chan struct{}
	closeOnce sync.Once
}

// NewBus returns a bus whose inbox holds up to capacity pending messages.
func NewBus(capacity int) *Bus {
	if capacity <= 0 {
		capacity = 64
	}
	return &Bus{
		inbox: make(chan envelope, capacity),
		done:  make(chan struct{}),
	}
}

// Serve dispatches messages in arrival order until ctx ends or the bus is closed.
// A request is handled under its requester's context, so a request that times
// out also cancels the work it started. Requests whose context is already done
// when dequeued are not handled.
func (b *Bus) Serve(ctx context.Context, h Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-b.done:
			return nil
		case env := <-b.inbox:
			if env.reply == nil {
				h.Handle(ctx, env.msg)
				continue
			}
			env.reply <- dispatch(ctx, h, env)
		}
	}
}

func dispatch(serveCtx context.Context, h Handler, env envelope) Reply {
	ctx := env.ctx
	if ctx == nil {
		ctx = serveCtx
	}
	if err := ctx.Err(); err != nil {
		return timeoutReply(env.msg, err)
	}
	return h.Handle(ctx, env.msg)
}

// Send enqueues a fire-and-forget message. It blocks only while the inbox is full.
func (b *Bus) Send(ctx context.Context, msg Message) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.inbox <- envelope{msg: msg}:
		return nil
	case <-b.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Request enqueues msg and waits for its reply. When the deadline passes the
// reply carries StatusTimeout; a late answer from the handler is dropped.
// A non-positive timeout waits on ctx alone.
func (b *Bus) Request(ctx context.Context, msg Message, timeout time.Duration) Reply {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	env := envelope{ctx: ctx, msg: msg, reply: make(chan Reply, 1)}
	select {
	case <-b.done:
		return Reply{Kind: msg.Kind, Status: StatusError, Err: ErrClosed}
	default:
	}
	select {
	case b.inbox <- env:
	case <-b.done:
		return Reply{Kind: msg.Kind, Status: StatusError, Err: ErrClosed}
	case <-ctx.Done():
		return timeoutReply(msg, ctx.Err())
	}
	select {
	case reply := <-env.reply:
		return reply
	case <-b.done:
		return Reply{Kind: msg.Kind, Status: StatusError, Err: ErrClosed}
	case <-ctx.Done():
		return timeoutReply(msg, ctx.Err())
	}
}

func timeoutReply(msg Message, err error) Reply {
	if errors.Is(err, context.DeadlineExceeded) {
		return Reply{Kind: msg.Kind, Status: StatusTimeout, Err: fmt.Errorf("%s: %w", msg.Kind, err)}
	}
	return Reply{Kind: msg.Kind, Status: StatusError, Err: fmt.Errorf("%s: %w", msg.Kind, err)}
}

// Close stops Serve and fails pending and future sends.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
}
