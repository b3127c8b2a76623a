package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	ffmpegReadSize  = 32 << 10
	ffmpegStopGrace = 5 * time.Second
	stderrTail      = 4 << 10
)

// FFmpegPipeline records the screen by running an ffmpeg binary that encodes
// VP9 into a WebM stream on stdout. Each stdout read becomes one chunk.
type FFmpegPipeline struct {
	Binary   string
	LookPath func(string) (string, error)
	// Command builds the process; tests swap it for a helper binary.
	Command func(name string, args ...string) *exec.Cmd
	GOOS    string
	Logger  *slog.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	done    chan error
	readers sync.WaitGroup
	stderr  *tailBuffer
}

// NewFFmpegPipeline returns a pipeline using binary from PATH.
func NewFFmpegPipeline(binary string, logger *slog.Logger) *FFmpegPipeline {
	return &FFmpegPipeline{Binary: binary, Logger: logger}
}

// Start launches ffmpeg with arguments derived from c.
func (p *FFmpegPipeline) Start(ctx context.Context, c Constraints, emit func([]byte)) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return ErrAlreadyStarted
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lookPath := p.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	path, err := lookPath(binary)
	if err != nil {
		return fmt.Errorf("%w: %s not found: %v", ErrBackendUnavailable, binary, err)
	}
	goos := p.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	args, err := FFmpegArgs(goos, c)
	if err != nil {
		return err
	}

	command := p.Command
	if command == nil {
		command = exec.Command
	}
	cmd := command(path, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout: %w", err)
	}
	stderr := &tailBuffer{limit: stderrTail}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return newDeviceError("start ffmpeg", err)
	}
	logger.Debug("ffmpeg started", "path", path, "args", strings.Join(args, " "), "pid", cmd.Process.Pid)

	p.cmd = cmd
	p.stdin = stdin
	p.stderr = stderr
	p.done = make(chan error, 1)

	p.readers.Add(1)
	go func() {
		defer p.readers.Done()
		buf := make([]byte, ffmpegReadSize)
		for {
			n, err := stdout.Read(buf)
			if n > 0 {
				emit(append([]byte(nil), buf[:n]...))
			}
			if err != nil {
				if !errors.Is(err, io.EOF) {
					logger.Warn("ffmpeg stdout read failed", "error", err)
				}
				return
			}
		}
	}()

	go func(done chan<- error) {
		p.readers.Wait()
		err := cmd.Wait()
		if err != nil {
			logger.Warn("ffmpeg exited", "error", err, "stderr", stderr.String())
		}
		done <- err
	}(p.done)
	return nil
}

// Stop asks ffmpeg to finish by writing "q" on stdin, waiting for it to flush
// the container trailer. The process is killed if it outlives ctx or the grace
// period. Stopping a pipeline that never started is a no-op.
func (p *FFmpegPipeline) Stop(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return nil
	}
	cmd, done := p.cmd, p.done
	p.cmd = nil

	_, _ = io.WriteString(p.stdin, "q\n")
	_ = p.stdin.Close()

	timer := time.NewTimer(ffmpegStopGrace)
	defer timer.Stop()

	var err error
	select {
	case err = <-done:
	case <-timer.C:
		_ = cmd.Process.Kill()
		err = <-done
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		err = <-done
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 255 {
			// ffmpeg exits 255 when interrupted after writing a valid trailer.
			return nil
		}
		return newDeviceError("ffmpeg exited: "+strings.TrimSpace(p.stderr.String()), err)
	}
	return nil
}

// FFmpegArgs builds the ffmpeg argument list for the host platform.
func FFmpegArgs(goos string, c Constraints) ([]string, error) {
	if c.Width <= 0 || c.Height <= 0 {
		return nil, fmt.Errorf("invalid capture size %dx%d", c.Width, c.Height)
	}
	fps := c.FrameRate.Ideal
	if fps <= 0 {
		fps = 30
	}
	rate := strconv.Itoa(fps)
	size := fmt.Sprintf("%dx%d", c.Width, c.Height)
	display := strings.TrimSpace(c.Source.DisplayID)

	args := []string{"-hide_banner", "-loglevel", "error", "-nostats"}
	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		if display == "" {
			display = ":0"
		}
		args = append(args, "-f", "x11grab", "-framerate", rate, "-i", display)
	case "darwin":
		if display == "" {
			display = "0"
		}
		args = append(args, "-f", "avfoundation", "-capture_cursor", "1", "-framerate", rate, "-i", "Capture screen "+display+":none")
	case "windows":
		args = append(args, "-f", "gdigrab", "-framerate", rate, "-i", "desktop")
	default:
		return nil, fmt.Errorf("%w: no ffmpeg capture device for %s", ErrBackendUnavailable, goos)
	}

	args = append(args,
		"-vf", "scale="+strings.Replace(size, "x", ":", 1),
		"-r", rate,
		"-c:v", "libvpx-vp9",
		"-deadline", "realtime",
		"-cpu-used", "8",
	)
	if c.Bitrate > 0 {
		args = append(args, "-b:v", strconv.Itoa(c.Bitrate))
	}
	args = append(args, "-an", "-f", "webm", "pipe:1")
	return args, nil
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - t.limit; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.String()
}
