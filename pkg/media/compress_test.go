package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/deskrec/pkg/logging"
)

// TestCompressHelperProcess stands in for ffmpeg in compression mode: it
// reads the whole input and writes a short marker carrying its length.
func TestCompressHelperProcess(t *testing.T) {
	mode := os.Getenv("DESKREC_WANT_COMPRESS_HELPER")
	if mode == "" {
		return
	}
	data, _ := io.ReadAll(os.Stdin)
	switch mode {
	case "fail":
		fmt.Fprint(os.Stderr, "Invalid data found when processing input")
		os.Exit(1)
	case "empty":
		os.Exit(0)
	}
	fmt.Fprintf(os.Stdout, "vp9:%d", len(data))
	os.Exit(0)
}

func compressHelper(mode string) func(context.Context, string, ...string) *exec.Cmd {
	return func(ctx context.Context, name string, args ...string) *exec.Cmd {
		cs := append([]string{"-test.run=TestCompressHelperProcess", "--", name}, args...)
		cmd := exec.CommandContext(ctx, os.Args[0], cs...)
		cmd.Env = append(os.Environ(), "DESKREC_WANT_COMPRESS_HELPER="+mode)
		return cmd
	}
}

func newTestCompressor(mode string) *FFmpegCompressor {
	return &FFmpegCompressor{
		Binary:   "ffmpeg",
		LookPath: func(name string) (string, error) { return "/usr/bin/" + name, nil },
		Command:  compressHelper(mode),
		Logger:   logging.Discard(),
	}
}

func TestCompressArgs(t *testing.T) {
	joined := strings.Join(CompressArgs(0), " ")
	assert.Contains(t, joined, "-i pipe:0")
	assert.Contains(t, joined, "-c:v libvpx-vp9 -crf 30 -b:v 0 -deadline good")
	assert.True(t, strings.HasSuffix(joined, "-f webm pipe:1"))

	assert.Contains(t, strings.Join(CompressArgs(40), " "), "-crf 40")
}

func TestFFmpegCompressorPipesBlob(t *testing.T) {
	out, err := newTestCompressor("ok").Compress(context.Background(), []byte("0123456789"))
	require.NoError(t, err)
	assert.Equal(t, "vp9:10", string(out))
}

func TestFFmpegCompressorFailures(t *testing.T) {
	_, err := newTestCompressor("fail").Compress(context.Background(), []byte("raw"))
	require.ErrorIs(t, err, ErrDevice)
	assert.Contains(t, err.Error(), "Invalid data")

	_, err = newTestCompressor("empty").Compress(context.Background(), []byte("raw"))
	assert.ErrorIs(t, err, ErrEmptyOutput)

	missing := newTestCompressor("ok")
	missing.LookPath = func(string) (string, error) { return "", exec.ErrNotFound }
	_, err = missing.Compress(context.Background(), []byte("raw"))
	assert.ErrorIs(t, err, ErrBackendUnavailable)
}
