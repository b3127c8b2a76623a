package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/offlinefirst/deskrec/pkg/ipc"
	"github.com/offlinefirst/deskrec/pkg/sources"
)

// Handle dispatches one inbound message. It is the privileged side's ipc.Handler.
func (c *Controller) Handle(ctx context.Context, msg ipc.Message) ipc.Reply {
	switch msg.Kind {
	case ipc.KindStartRecording:
		sess, err := c.Start(ctx)
		if err != nil {
			return ipc.Reply{Kind: msg.Kind, Status: startStatus(err), Err: err}
		}
		return ipc.Reply{Kind: ipc.KindSetSource, Status: ipc.StatusSuccess, Source: sess.Source, SessionID: sess.ID}

	case ipc.KindStopRecording:
		res, err := c.Stop(ctx)
		reply := ipc.Reply{
			Kind:      msg.Kind,
			Status:    ipc.StatusSuccess,
			SessionID: res.SessionID,
			LogPath:   res.LogPath,
			Samples:   res.Samples,
		}
		if err != nil {
			reply.Status = ipc.StatusError
			reply.Err = err
		}
		return reply

	case ipc.KindMouseMove:
		return sampleReply(msg.Kind, c.RecordMouse(ctx, msg.X, msg.Y))

	case ipc.KindKeyboardInput:
		return sampleReply(msg.Kind, c.RecordKey(ctx, msg.Key))

	default:
		return ipc.Reply{Kind: msg.Kind, Status: ipc.StatusError, Err: fmt.Errorf("unknown message kind %q", msg.Kind)}
	}
}

func sampleReply(kind ipc.Kind, recorded bool) ipc.Reply {
	if recorded {
		return ipc.Reply{Kind: kind, Status: ipc.StatusSuccess}
	}
	return ipc.Reply{Kind: kind, Status: ipc.StatusRejected}
}

func startStatus(err error) ipc.Status {
	switch {
	case errors.Is(err, ErrSessionActive):
		return ipc.StatusRejected
	case errors.Is(err, sources.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ipc.StatusTimeout
	default:
		return ipc.StatusCapabilityError
	}
}
