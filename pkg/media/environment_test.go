package media

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offlinefirst/deskrec/pkg/logging"
	"github.com/offlinefirst/deskrec/pkg/permissions"
)

func envLookup(env map[string]string) permissions.LookupEnvFunc {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func found(name string) (string, error) { return "/usr/bin/" + name, nil }
func missing(string) (string, error)    { return "", errors.New("not found") }

func TestDetectEnvironmentAuto(t *testing.T) {
	granted := envLookup(map[string]string{permissions.EnvScreenCapture: "granted"})

	env := DetectEnvironment(DetectOptions{Backend: "auto", LookPath: found, LookupEnv: granted})
	assert.Equal(t, ProviderFFmpeg, env.Provider)
	assert.Equal(t, "/usr/bin/ffmpeg", env.Binary)
	assert.True(t, env.Available)

	env = DetectEnvironment(DetectOptions{Backend: "auto", LookPath: missing, LookupEnv: granted})
	assert.Equal(t, ProviderSynthetic, env.Provider)
	assert.True(t, env.Available)
	assert.Contains(t, env.Message, "not found")

	denied := envLookup(map[string]string{permissions.EnvScreenCapture: "denied"})
	env = DetectEnvironment(DetectOptions{Backend: "auto", LookPath: found, LookupEnv: denied})
	assert.Equal(t, ProviderSynthetic, env.Provider)
	assert.Equal(t, "denied", env.Permission)
}

func TestDetectEnvironmentExplicitBackends(t *testing.T) {
	none := envLookup(nil)

	env := DetectEnvironment(DetectOptions{Backend: "ffmpeg", LookPath: missing, LookupEnv: none})
	assert.Equal(t, ProviderFFmpeg, env.Provider)
	assert.False(t, env.Available)
	assert.NotEmpty(t, env.Guidance)
	_, err := NewPipeline(env, logging.Discard())
	assert.ErrorIs(t, err, ErrBackendUnavailable)

	env = DetectEnvironment(DetectOptions{Backend: "synthetic", LookPath: found, LookupEnv: none})
	assert.Equal(t, ProviderSynthetic, env.Provider)
	p, err := NewPipeline(env, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &SyntheticPipeline{}, p)

	override := envLookup(map[string]string{EnvBackend: "stub", permissions.EnvScreenCapture: "granted"})
	env = DetectEnvironment(DetectOptions{Backend: "ffmpeg", LookPath: found, LookupEnv: override})
	assert.Equal(t, ProviderSynthetic, env.Provider)

	env = DetectEnvironment(DetectOptions{Backend: "gstreamer", LookPath: found, LookupEnv: none})
	assert.False(t, env.Available)

	env = DetectEnvironment(DetectOptions{Backend: "ffmpeg", LookPath: found, LookupEnv: envLookup(map[string]string{permissions.EnvScreenCapture: "granted"})})
	p, err = NewPipeline(env, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &FFmpegPipeline{}, p)
}

func TestFileSinkOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "screen-recording.webm")
	sink := FileSink{Path: path}
	ctx := context.Background()

	got, err := sink.Save(ctx, []byte("first"))
	require.NoError(t, err)
	assert.Equal(t, path, got)
	_, err = sink.Save(ctx, []byte("second"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	_, err = FileSink{}.Save(ctx, nil)
	assert.Error(t, err)
}

func TestDownloadSinkDeduplicatesAndReveals(t *testing.T) {
	dir := t.TempDir()
	var revealed []string
	sink := &DownloadSink{
		Dir:    dir,
		Name:   "screen-recording.webm",
		Reveal: true,
		Open: func(path string) error {
			revealed = append(revealed, path)
			return errors.New("no file manager")
		},
		Logger: logging.Discard(),
	}
	ctx := context.Background()

	first, err := sink.Save(ctx, []byte("a"))
	require.NoError(t, err)
	second, err := sink.Save(ctx, []byte("b"))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "screen-recording.webm"), first)
	assert.Equal(t, filepath.Join(dir, "screen-recording (1).webm"), second)
	assert.Equal(t, []string{first, second}, revealed)

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "a", string(data))
}

func TestDuplicateName(t *testing.T) {
	assert.Equal(t, "clip.webm", DuplicateName("clip.webm", 0))
	assert.Equal(t, "clip (2).webm", DuplicateName("clip.webm", 2))
	assert.Equal(t, "clip (1)", DuplicateName("clip", 1))
}

func TestNewSinkModes(t *testing.T) {
	sink, err := NewSink(SinkOptions{Mode: "file", FilePath: "/tmp/x.webm"})
	require.NoError(t, err)
	assert.Equal(t, FileSink{Path: "/tmp/x.webm"}, sink)

	sink, err = NewSink(SinkOptions{Mode: "download", FilePath: "/tmp/x.webm"})
	require.NoError(t, err)
	dl, ok := sink.(*DownloadSink)
	require.True(t, ok)
	assert.Equal(t, "x.webm", dl.Name)

	_, err = NewSink(SinkOptions{Mode: "ftp"})
	assert.Error(t, err)
}
