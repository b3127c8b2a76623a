package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFileMissing(t *testing.T) {
	dir := t.TempDir()
	cwd, err := os.Getwd()
	require.NoError(t, err)
	defer os.Chdir(cwd)
	require.NoError(t, os.Chdir(dir))

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "recordings", cfg.Paths.OutputDir)
	assert.Equal(t, "recording_data.json", cfg.Paths.SessionLog)
	assert.Equal(t, "<defaults>", cfg.Source)
	assert.Equal(t, "1080p", cfg.Capture.Resolution)
	assert.Equal(t, 60, cfg.Capture.FrameRate)
	assert.Equal(t, 2500000, cfg.Capture.Bitrate)
	assert.Equal(t, 100, cfg.Capture.TimesliceMillis)
	assert.Equal(t, 0, cfg.Capture.AcquireRetries)
	assert.False(t, cfg.Telemetry.Enabled)
}

func TestLoadMissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestLoadFromFileOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	content := "paths:\n  output_dir: artifacts\n  session_log: events.json\ncapture:\n  resolution: 4K\n  frame_rate: 30\n  bitrate: 8000000\n  backend: synthetic\n  output_mode: download\n  acquire_retries: 2\n  input: none\nlogging:\n  level: DEBUG\n  format: console\ntelemetry:\n  enabled: true\n"
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, "artifacts", cfg.Paths.OutputDir)
	assert.Equal(t, "events.json", cfg.Paths.SessionLog)
	assert.Equal(t, "screen-recording.webm", cfg.Paths.MediaFile)
	assert.Equal(t, "4k", cfg.Capture.Resolution)
	assert.Equal(t, 30, cfg.Capture.FrameRate)
	assert.Equal(t, 8000000, cfg.Capture.Bitrate)
	assert.Equal(t, "synthetic", cfg.Capture.Backend)
	assert.Equal(t, "download", cfg.Capture.OutputMode)
	assert.Equal(t, 2, cfg.Capture.AcquireRetries)
	assert.Equal(t, "none", cfg.Capture.Input)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.True(t, cfg.Telemetry.Enabled)
	assert.Equal(t, cfgPath, cfg.Source)
}

func TestUnknownKeyReturnsError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("capture:\n  unsupported: true\n"), 0o644))

	_, err := Load(cfgPath)
	require.Error(t, err)
}

func TestUnsupportedResolutionRejected(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("capture:\n  resolution: 8k\n"), 0o644))

	_, err := Load(cfgPath)
	require.Error(t, err)
}

func TestEnvironmentOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("DESKREC_CAPTURE_FRAME_RATE", "24")
	t.Setenv("DESKREC_CAPTURE_RESOLUTION", "720p")

	cfg, err := LoadWith(viper.New(), writeEmptyConfig(t, dir))
	require.NoError(t, err)

	assert.Equal(t, 24, cfg.Capture.FrameRate)
	assert.Equal(t, "720p", cfg.Capture.Resolution)
}

func TestCompressionSettings(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("capture:\n  compress: true\n  compress_crf: 36\n"), 0o644))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)
	assert.True(t, cfg.Capture.Compress)
	assert.Equal(t, 36, cfg.Capture.CompressCRF)

	assert.False(t, Default().Capture.Compress)
	assert.Equal(t, 30, Default().Capture.CompressCRF)

	bad := Default()
	bad.Capture.CompressCRF = 64
	assert.Error(t, bad.Validate())
}

func TestOutOfRangeFrameRateIsNotValidated(t *testing.T) {
	cfg := Default()
	cfg.Capture.FrameRate = 100000
	cfg.Capture.Bitrate = 1
	assert.NoError(t, cfg.Validate())
}

func TestNormalizers(t *testing.T) {
	cases := []struct {
		name string
		fn   func(string) (string, error)
		in   string
		want string
	}{
		{"level warning", NormalizeLogLevel, "WARNING", "warn"},
		{"format text", NormalizeFormat, "text", "console"},
		{"resolution qhd", NormalizeResolution, "QHD", "2k"},
		{"resolution empty", NormalizeResolution, "", "1080p"},
		{"mode download", NormalizeOutputMode, " Download ", "download"},
		{"backend stub", NormalizeBackend, "stub", "synthetic"},
		{"input tty", NormalizeInput, "tty", "terminal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.fn(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := NormalizeOutputMode("stream")
	assert.Error(t, err)
}

func writeEmptyConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("# empty\n"), 0o644))
	return path
}
