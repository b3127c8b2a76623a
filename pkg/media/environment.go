package media

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"github.com/offlinefirst/deskrec/pkg/permissions"
)

// Provider identifiers reported in run summaries.
const (
	ProviderFFmpeg    = "ffmpeg"
	ProviderSynthetic = "synthetic"
)

// EnvBackend overrides capture.backend.
const EnvBackend = "DESKREC_VIDEO_BACKEND"

// Environment describes the capture backend chosen for this host.
type Environment struct {
	Provider   string
	Binary     string
	Available  bool
	Permission string
	Message    string
	Guidance   string
}

// DetectOptions feed DetectEnvironment. Nil functions fall back to the process environment.
type DetectOptions struct {
	Backend   string
	Binary    string
	LookPath  func(string) (string, error)
	LookupEnv permissions.LookupEnvFunc
}

// DetectEnvironment resolves the backend. "auto" prefers ffmpeg when the
// binary is on PATH and screen capture is permitted, and falls back to the
// synthetic pipeline otherwise.
func DetectEnvironment(opts DetectOptions) Environment {
	lookupEnv := opts.LookupEnv
	if lookupEnv == nil {
		lookupEnv = os.LookupEnv
	}
	lookPath := opts.LookPath
	if lookPath == nil {
		lookPath = exec.LookPath
	}
	binary := strings.TrimSpace(opts.Binary)
	if binary == "" {
		binary = "ffmpeg"
	}

	backend := strings.ToLower(strings.TrimSpace(opts.Backend))
	if value, ok := lookupEnv(EnvBackend); ok && strings.TrimSpace(value) != "" {
		backend = strings.ToLower(strings.TrimSpace(value))
	}
	if backend == "stub" {
		backend = ProviderSynthetic
	}

	screen := permissions.ProbeScreenCapture(lookupEnv)
	env := Environment{
		Provider:   ProviderSynthetic,
		Available:  true,
		Permission: screen.StatusString(),
		Message:    screen.Message,
		Guidance:   screen.Guidance,
	}

	switch backend {
	case ProviderSynthetic:
		env.Message = "synthetic capture pipeline"
		return env
	case ProviderFFmpeg, "", "auto":
	default:
		env.Available = false
		env.Message = fmt.Sprintf("unknown capture backend %q", backend)
		return env
	}

	resolved, err := lookPath(binary)
	found := err == nil
	if found {
		env.Binary = resolved
	}

	if backend == ProviderFFmpeg {
		env.Provider = ProviderFFmpeg
		env.Binary = binary
		if found {
			env.Binary = resolved
		}
		switch {
		case !found:
			env.Available = false
			env.Message = binary + " not found on PATH"
			env.Guidance = "install ffmpeg or set capture.backend to synthetic"
		case screen.Denied():
			env.Available = false
			if env.Message == "" {
				env.Message = "screen capture permission missing"
			}
		}
		return env
	}

	if found && !screen.Denied() {
		env.Provider = ProviderFFmpeg
		return env
	}
	env.Binary = ""
	if !found {
		env.Message = binary + " not found on PATH; using synthetic capture pipeline"
	} else {
		env.Message = "screen capture not permitted; using synthetic capture pipeline"
	}
	return env
}

// NewPipeline builds the pipeline for env.
func NewPipeline(env Environment, logger *slog.Logger) (Pipeline, error) {
	if !env.Available {
		msg := env.Message
		if msg == "" {
			msg = env.Provider
		}
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, msg)
	}
	switch env.Provider {
	case ProviderFFmpeg:
		return NewFFmpegPipeline(env.Binary, logger), nil
	case ProviderSynthetic:
		return NewSyntheticPipeline(logger), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrBackendUnavailable, env.Provider)
	}
}
