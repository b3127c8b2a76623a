package events

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"golang.org/x/term"
)

const (
	enableMouseReporting  = "\x1b[?1003h\x1b[?1006h"
	disableMouseReporting = "\x1b[?1003l\x1b[?1006l"

	// escapeTimeout is how long a lone ESC waits for the rest of a sequence
	// before it counts as the Escape key.
	escapeTimeout = 50 * time.Millisecond
)

// Hooks for tests; the real implementations need a tty.
var (
	isTerminal = term.IsTerminal
	makeRaw    = term.MakeRaw
	restore    = term.Restore
)

// TerminalSource listens to a raw-mode terminal for key presses and pointer
// motion. Ctrl-C or Ctrl-D ends the stream with ErrStopRequested.
type TerminalSource struct {
	In  io.Reader
	Fd  int
	Out io.Writer
}

// NewTerminalSource attaches to the process stdin and stdout.
func NewTerminalSource() *TerminalSource {
	return &TerminalSource{In: os.Stdin, Fd: int(os.Stdin.Fd()), Out: os.Stdout}
}

// Stream switches the terminal to raw mode, enables any-motion mouse
// reporting, and emits decoded inputs until ctx ends or the user stops.
// The terminal state is restored before returning.
func (s *TerminalSource) Stream(ctx context.Context, emit func(Input) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if !isTerminal(s.Fd) {
		return ErrNotTerminal
	}
	state, err := makeRaw(s.Fd)
	if err != nil {
		return fmt.Errorf("enable raw mode: %w", err)
	}
	defer func() { _ = restore(s.Fd, state) }()

	if s.Out != nil {
		if _, err := io.WriteString(s.Out, enableMouseReporting); err != nil {
			return fmt.Errorf("enable mouse reporting: %w", err)
		}
		defer func() { _, _ = io.WriteString(s.Out, disableMouseReporting) }()
	}

	type chunk struct {
		data []byte
		err  error
	}
	// The reader goroutine may outlive Stream while blocked in Read; it exits on the next byte or EOF.
	reads := make(chan chunk, 1)
	go func() {
		buf := make([]byte, 256)
		for {
			n, err := s.In.Read(buf)
			data := append([]byte(nil), buf[:n]...)
			select {
			case reads <- chunk{data: data, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	emitAll := func(inputs []Input) error {
		for _, in := range inputs {
			if err := emit(in); err != nil {
				return err
			}
		}
		return nil
	}

	var (
		decoder    TerminalDecoder
		escTimeout <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-escTimeout:
			escTimeout = nil
			if err := emitAll(decoder.Flush()); err != nil {
				return err
			}
		case c := <-reads:
			inputs, stop := decoder.Feed(c.data)
			if err := emitAll(inputs); err != nil {
				return err
			}
			if stop {
				return ErrStopRequested
			}
			if c.err != nil {
				if errors.Is(c.err, io.EOF) {
					return emitAll(decoder.Flush())
				}
				return fmt.Errorf("read terminal: %w", c.err)
			}
			escTimeout = nil
			if decoder.PendingEscape() {
				escTimeout = time.After(escapeTimeout)
			}
		}
	}
}
