package permissions

import (
	"os"
	"runtime"
	"strings"
)

// Status enumerates coarse permission results for OS capture prompts.
type Status string

const (
	// StatusUnknown indicates no explicit signal about permission state.
	StatusUnknown Status = "unknown"
	// StatusGranted signals that permission was previously granted.
	StatusGranted Status = "granted"
	// StatusDenied indicates the user has explicitly denied access.
	StatusDenied Status = "denied"
	// StatusPromptRequired means the platform will prompt at runtime.
	StatusPromptRequired Status = "prompt"
	// StatusNotRequired reports that the platform does not gate the capability.
	StatusNotRequired Status = "not_required"
	// StatusUnavailable reports that the capability is not supported.
	StatusUnavailable Status = "unavailable"
)

const (
	EnvScreenCapture   = "DESKREC_SCREEN_CAPTURE"
	EnvInputMonitoring = "DESKREC_INPUT_MONITORING"
)

// ProbeResult represents the coarse state for a permission surface.
type ProbeResult struct {
	Status   Status
	Message  string
	Guidance string
}

// LookupEnvFunc exposes environment probing for testability.
type LookupEnvFunc func(string) (string, bool)

// lookupEnv is declared for swapping in tests.
var lookupEnv = func(key string) (string, bool) {
	return os.LookupEnv(key)
}

var goos = runtime.GOOS

// ProbeScreenCapture reports whether screen-source enumeration is expected to succeed.
func ProbeScreenCapture(lookup LookupEnvFunc) ProbeResult {
	if lookup == nil {
		lookup = lookupEnv
	}
	if value, ok := lookup(EnvScreenCapture); ok {
		return interpretPermissionFlag("screen capture", value)
	}
	switch goos {
	case "darwin":
		return ProbeResult{Status: StatusPromptRequired, Message: "awaiting macOS screen recording authorisation"}
	case "linux", "freebsd", "openbsd", "netbsd", "windows":
		return ProbeResult{Status: StatusNotRequired, Message: "screen capture is not permission gated on " + goos}
	default:
		return ProbeResult{Status: StatusUnavailable, Message: "screen capture unsupported on this platform"}
	}
}

// ProbeInputMonitoring reports whether keyboard and mouse listeners may observe input.
func ProbeInputMonitoring(lookup LookupEnvFunc) ProbeResult {
	if lookup == nil {
		lookup = lookupEnv
	}
	if value, ok := lookup(EnvInputMonitoring); ok {
		return interpretPermissionFlag("input monitoring", value)
	}
	return ProbeResult{Status: StatusNotRequired, Message: "terminal input needs no extra permission"}
}

// Denied reports whether the probe forbids the capability outright.
func (p ProbeResult) Denied() bool {
	return p.Status == StatusDenied || p.Status == StatusUnavailable
}

func interpretPermissionFlag(name, value string) ProbeResult {
	normalised := strings.ToLower(strings.TrimSpace(value))
	switch normalised {
	case "granted", "allow", "allowed", "yes", "true":
		return ProbeResult{Status: StatusGranted, Message: name + " permission pre-authorised via env override"}
	case "denied", "no", "false", "blocked":
		return ProbeResult{Status: StatusDenied, Message: name + " permission denied via env override", Guidance: "grant access in system settings or unset DESKREC_* env to re-test"}
	case "prompt", "ask":
		return ProbeResult{Status: StatusPromptRequired, Message: name + " permission will prompt at runtime"}
	case "unavailable", "unsupported":
		return ProbeResult{Status: StatusUnavailable, Message: name + " permission unavailable on this platform"}
	default:
		return ProbeResult{Status: StatusUnknown, Message: name + " permission state unknown"}
	}
}

// StatusString returns the string representation for status reporting.
func (p ProbeResult) StatusString() string {
	if p.Status == "" {
		return string(StatusUnknown)
	}
	return string(p.Status)
}
