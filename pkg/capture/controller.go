package capture

import (
	"context"
	"errors"
	"sync"
)

// Stop reasons reported by Controller.Reason.
var (
	ErrMaxDuration = errors.New("maximum recording duration reached")
	ErrInterrupted = errors.New("recording interrupted")
)

// Controller coordinates stop requests for a running capture. The first
// reason recorded wins; later requests are ignored.
type Controller struct {
	mu       sync.Mutex
	stopping bool
	reason   error
	signal   chan struct{}
}

// NewController constructs a controller in the running state.
func NewController() *Controller {
	return &Controller{signal: make(chan struct{})}
}

// Stop requests the capture to end. A nil reason records ErrInterrupted.
func (c *Controller) Stop(reason error) {
	if reason == nil {
		reason = ErrInterrupted
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping {
		return
	}
	c.stopping = true
	c.reason = reason
	close(c.signal)
}

// Done is closed once a stop has been requested.
func (c *Controller) Done() <-chan struct{} {
	return c.signal
}

// Wait blocks until a stop is requested or ctx ends, and returns the reason.
// A cancelled ctx is itself recorded as the stop reason.
func (c *Controller) Wait(ctx context.Context) error {
	select {
	case <-c.signal:
	case <-ctx.Done():
		c.Stop(errors.Join(ErrInterrupted, ctx.Err()))
	}
	return c.Reason()
}

// Reason returns the recorded stop reason, or nil while running.
func (c *Controller) Reason() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reason
}

// State reports the textual state for diagnostics.
func (c *Controller) State() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stopping {
		return "stopping"
	}
	return "running"
}
