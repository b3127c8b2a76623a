package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	DefaultFileName = "config.yaml"
	EnvPrefix       = "DESKREC"
)

// Config captures the user-adjustable knobs for recording sessions.
type Config struct {
	Paths     PathsConfig     `mapstructure:"paths"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Source indicates where the configuration originated (defaults or a file path).
	Source string `mapstructure:"-"`
}

// PathsConfig controls where session artifacts are written.
type PathsConfig struct {
	OutputDir  string `mapstructure:"output_dir"`
	SessionLog string `mapstructure:"session_log"`
	MediaFile  string `mapstructure:"media_file"`
}

// CaptureConfig holds the recording constraints and backend selection.
type CaptureConfig struct {
	Resolution            string `mapstructure:"resolution"`
	FrameRate             int    `mapstructure:"frame_rate"`
	Bitrate               int    `mapstructure:"bitrate"`
	MimeType              string `mapstructure:"mime_type"`
	Backend               string `mapstructure:"backend"`
	FFmpegBinary          string `mapstructure:"ffmpeg_binary"`
	OutputMode            string `mapstructure:"output_mode"`
	RevealDownload        bool   `mapstructure:"reveal_download"`
	Compress              bool   `mapstructure:"compress"`
	CompressCRF           int    `mapstructure:"compress_crf"`
	TimesliceMillis       int    `mapstructure:"timeslice_ms"`
	AcquireTimeoutSeconds int    `mapstructure:"acquire_timeout_seconds"`
	AcquireRetries        int    `mapstructure:"acquire_retries"`
	Input                 string `mapstructure:"input"`
	MaxDurationSeconds    int    `mapstructure:"max_duration_seconds"`
}

// LoggingConfig defines log verbosity, formatting and the optional rotating file.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// TelemetryConfig toggles the OpenTelemetry exporters.
type TelemetryConfig struct {
	Enabled               bool `mapstructure:"enabled"`
	ExportIntervalSeconds int  `mapstructure:"export_interval_seconds"`
}

// Default returns the baseline configuration used when no overrides are supplied.
func Default() Config {
	return Config{
		Paths: PathsConfig{
			OutputDir:  "recordings",
			SessionLog: "recording_data.json",
			MediaFile:  "screen-recording.webm",
		},
		Capture: CaptureConfig{
			Resolution:            "1080p",
			FrameRate:             60,
			Bitrate:               2500000,
			MimeType:              "video/webm;codecs=vp9",
			Backend:               "auto",
			FFmpegBinary:          "ffmpeg",
			OutputMode:            "file",
			RevealDownload:        false,
			Compress:              false,
			CompressCRF:           30,
			TimesliceMillis:       100,
			AcquireTimeoutSeconds: 10,
			AcquireRetries:        0,
			Input:                 "auto",
			MaxDurationSeconds:    0,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Telemetry: TelemetryConfig{
			Enabled:               false,
			ExportIntervalSeconds: 10,
		},
		Source: "<defaults>",
	}
}

// SetDefaults registers every known key on v so env overrides and exact
// unmarshalling both see the full key set.
func SetDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("paths.output_dir", d.Paths.OutputDir)
	v.SetDefault("paths.session_log", d.Paths.SessionLog)
	v.SetDefault("paths.media_file", d.Paths.MediaFile)

	v.SetDefault("capture.resolution", d.Capture.Resolution)
	v.SetDefault("capture.frame_rate", d.Capture.FrameRate)
	v.SetDefault("capture.bitrate", d.Capture.Bitrate)
	v.SetDefault("capture.mime_type", d.Capture.MimeType)
	v.SetDefault("capture.backend", d.Capture.Backend)
	v.SetDefault("capture.ffmpeg_binary", d.Capture.FFmpegBinary)
	v.SetDefault("capture.output_mode", d.Capture.OutputMode)
	v.SetDefault("capture.reveal_download", d.Capture.RevealDownload)
	v.SetDefault("capture.compress", d.Capture.Compress)
	v.SetDefault("capture.compress_crf", d.Capture.CompressCRF)
	v.SetDefault("capture.timeslice_ms", d.Capture.TimesliceMillis)
	v.SetDefault("capture.acquire_timeout_seconds", d.Capture.AcquireTimeoutSeconds)
	v.SetDefault("capture.acquire_retries", d.Capture.AcquireRetries)
	v.SetDefault("capture.input", d.Capture.Input)
	v.SetDefault("capture.max_duration_seconds", d.Capture.MaxDurationSeconds)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.export_interval_seconds", d.Telemetry.ExportIntervalSeconds)
}

// Load reads configuration from disk if present, otherwise returning defaults.
// When path is empty, the loader attempts to read ./config.yaml but tolerates a missing file.
func Load(path string) (Config, error) {
	return LoadWith(viper.New(), path)
}

// LoadWith resolves configuration through the supplied viper instance so callers
// can bind command-line flags before the values are read.
func LoadWith(v *viper.Viper, path string) (Config, error) {
	cfg := Default()

	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	candidate := strings.TrimSpace(path)
	explicit := candidate != ""
	if !explicit {
		candidate = DefaultFileName
	}

	source := cfg.Source
	if _, err := os.Stat(candidate); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("open config file %q: %w", candidate, err)
		}
		if explicit {
			return cfg, fmt.Errorf("config file %q not found", candidate)
		}
	} else {
		v.SetConfigFile(candidate)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config file %q: %w", candidate, err)
		}
		source = candidate
	}

	if err := v.UnmarshalExact(&cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.Source = source
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// Validate ensures essential configuration values are present and sensible.
// Frame rate and bitrate are passed through to the pipeline unchecked.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		return errors.New("paths.output_dir must not be empty")
	}
	if strings.TrimSpace(c.Paths.SessionLog) == "" {
		return errors.New("paths.session_log must not be empty")
	}
	if strings.TrimSpace(c.Paths.MediaFile) == "" {
		return errors.New("paths.media_file must not be empty")
	}

	if _, err := NormalizeLogLevel(c.Logging.Level); err != nil {
		return err
	}
	if _, err := NormalizeFormat(c.Logging.Format); err != nil {
		return err
	}

	if _, err := NormalizeResolution(c.Capture.Resolution); err != nil {
		return err
	}
	if _, err := NormalizeOutputMode(c.Capture.OutputMode); err != nil {
		return err
	}
	if _, err := NormalizeBackend(c.Capture.Backend); err != nil {
		return err
	}
	if _, err := NormalizeInput(c.Capture.Input); err != nil {
		return err
	}
	if c.Capture.AcquireRetries < 0 {
		return errors.New("capture.acquire_retries must not be negative")
	}
	if c.Capture.MaxDurationSeconds < 0 {
		return errors.New("capture.max_duration_seconds must not be negative")
	}
	if c.Capture.CompressCRF < 0 || c.Capture.CompressCRF > 63 {
		return fmt.Errorf("capture.compress_crf must be between 0 and 63, got %d", c.Capture.CompressCRF)
	}

	return nil
}

func (c *Config) normalize() {
	defaults := Default()

	c.Paths.OutputDir = filepath.Clean(strings.TrimSpace(c.Paths.OutputDir))
	if c.Paths.OutputDir == "." || c.Paths.OutputDir == "" {
		c.Paths.OutputDir = defaults.Paths.OutputDir
	}
	if strings.TrimSpace(c.Paths.SessionLog) == "" {
		c.Paths.SessionLog = defaults.Paths.SessionLog
	}
	if strings.TrimSpace(c.Paths.MediaFile) == "" {
		c.Paths.MediaFile = defaults.Paths.MediaFile
	}

	if lvl, err := NormalizeLogLevel(c.Logging.Level); err == nil {
		c.Logging.Level = lvl
	}
	if format, err := NormalizeFormat(c.Logging.Format); err == nil {
		c.Logging.Format = format
	}
	if res, err := NormalizeResolution(c.Capture.Resolution); err == nil {
		c.Capture.Resolution = res
	}
	if mode, err := NormalizeOutputMode(c.Capture.OutputMode); err == nil {
		c.Capture.OutputMode = mode
	}
	if backend, err := NormalizeBackend(c.Capture.Backend); err == nil {
		c.Capture.Backend = backend
	}
	if input, err := NormalizeInput(c.Capture.Input); err == nil {
		c.Capture.Input = input
	}

	if strings.TrimSpace(c.Capture.MimeType) == "" {
		c.Capture.MimeType = defaults.Capture.MimeType
	}
	if strings.TrimSpace(c.Capture.FFmpegBinary) == "" {
		c.Capture.FFmpegBinary = defaults.Capture.FFmpegBinary
	}
	if c.Capture.TimesliceMillis <= 0 {
		c.Capture.TimesliceMillis = defaults.Capture.TimesliceMillis
	}
	if c.Capture.AcquireTimeoutSeconds <= 0 {
		c.Capture.AcquireTimeoutSeconds = defaults.Capture.AcquireTimeoutSeconds
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaults.Logging.MaxSizeMB
	}
	if c.Telemetry.ExportIntervalSeconds <= 0 {
		c.Telemetry.ExportIntervalSeconds = defaults.Telemetry.ExportIntervalSeconds
	}
}

// NormalizeLogLevel validates and lowercases known logging levels.
func NormalizeLogLevel(level string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return "info", nil
	case "debug":
		return "debug", nil
	case "warn", "warning":
		return "warn", nil
	case "error":
		return "error", nil
	default:
		return "", fmt.Errorf("unsupported log level %q", level)
	}
}

// NormalizeFormat validates and canonicalizes logging format identifiers.
func NormalizeFormat(format string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "json":
		return "json", nil
	case "console", "text":
		return "console", nil
	default:
		return "", fmt.Errorf("unsupported log format %q", format)
	}
}

// NormalizeResolution maps user spellings onto the preset names understood by the media pipeline.
func NormalizeResolution(resolution string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(resolution)) {
	case "4k", "2160p", "uhd":
		return "4k", nil
	case "2k", "1440p", "qhd":
		return "2k", nil
	case "", "1080p", "fhd":
		return "1080p", nil
	case "720p", "hd":
		return "720p", nil
	default:
		return "", fmt.Errorf("unsupported resolution %q (want 4k, 2k, 1080p or 720p)", resolution)
	}
}

// NormalizeOutputMode validates how the finished media blob is delivered.
func NormalizeOutputMode(mode string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "file":
		return "file", nil
	case "download":
		return "download", nil
	default:
		return "", fmt.Errorf("unsupported output mode %q", mode)
	}
}

// NormalizeBackend validates the media pipeline backend identifier.
func NormalizeBackend(backend string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", "auto":
		return "auto", nil
	case "ffmpeg":
		return "ffmpeg", nil
	case "synthetic", "stub":
		return "synthetic", nil
	default:
		return "", fmt.Errorf("unsupported capture backend %q", backend)
	}
}

// NormalizeInput validates the input listener identifier.
func NormalizeInput(input string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "", "auto":
		return "auto", nil
	case "terminal", "tty":
		return "terminal", nil
	case "synthetic":
		return "synthetic", nil
	case "none", "off":
		return "none", nil
	default:
		return "", fmt.Errorf("unsupported input source %q", input)
	}
}
