package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
)

// DefaultCRF is the constant rate factor used when none is configured.
const DefaultCRF = 30

// ErrEmptyOutput is returned when a compressor produced no bytes.
var ErrEmptyOutput = errors.New("compressor produced no output")

// Compressor re-encodes a finalized recording before it is saved.
type Compressor interface {
	Compress(ctx context.Context, blob []byte) ([]byte, error)
}

// FFmpegCompressor re-encodes a WebM blob with libvpx-vp9 in constant quality
// mode, piping the blob through ffmpeg's stdin and stdout.
type FFmpegCompressor struct {
	Binary   string
	CRF      int
	LookPath func(string) (string, error)
	// Command builds the process; tests swap it for a helper binary.
	Command func(ctx context.Context, name string, args ...string) *exec.Cmd
	Logger  *slog.Logger
}

// NewFFmpegCompressor returns a compressor using binary from PATH.
func NewFFmpegCompressor(binary string, crf int, logger *slog.Logger) *FFmpegCompressor {
	return &FFmpegCompressor{Binary: binary, CRF: crf, Logger: logger}
}

// CompressArgs builds the ffmpeg argument list for a stdin to stdout re-encode.
func CompressArgs(crf int) []string {
	if crf <= 0 {
		crf = DefaultCRF
	}
	return []string{
		"-hide_banner", "-loglevel", "error", "-nostats",
		"-f", "webm", "-i", "pipe:0",
		"-c:v", "libvpx-vp9",
		"-crf", strconv.Itoa(crf),
		"-b:v", "0",
		"-deadline", "good",
		"-an", "-f", "webm", "pipe:1",
	}
}

// Compress runs ffmpeg over blob and returns the re-encoded bytes.
func (c *FFmpegCompressor) Compress(ctx context.Context, blob []byte) ([]byte, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lookPath := c.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	binary := strings.TrimSpace(c.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	path, err := lookPath(binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %s not found: %v", ErrBackendUnavailable, binary, err)
	}
	command := c.Command
	if command == nil {
		command = exec.CommandContext
	}

	args := CompressArgs(c.CRF)
	cmd := command(ctx, path, args...)
	var out bytes.Buffer
	stderr := &tailBuffer{limit: stderrTail}
	cmd.Stdin = bytes.NewReader(blob)
	cmd.Stdout = &out
	cmd.Stderr = stderr

	logger.Debug("compressing recording", "path", path, "args", strings.Join(args, " "), "input_bytes", len(blob))
	if err := cmd.Run(); err != nil {
		return nil, newDeviceError("ffmpeg compress: "+strings.TrimSpace(stderr.String()), err)
	}
	if out.Len() == 0 {
		return nil, ErrEmptyOutput
	}
	logger.Info("recording compressed", "input_bytes", len(blob), "output_bytes", out.Len())
	return out.Bytes(), nil
}
