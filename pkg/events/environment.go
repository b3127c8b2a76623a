package events

import (
	"os"

	"golang.org/x/term"

	"github.com/offlinefirst/deskrec/pkg/permissions"
)

// Environment summarises which input listener a run will use.
type Environment struct {
	Provider   string
	Available  bool
	Permission string
	Message    string
	Guidance   string
}

const (
	ProviderTerminal  = "terminal"
	ProviderSynthetic = "synthetic"
	ProviderNone      = "none"
)

var stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

// DetectEnvironment resolves the configured input mode (auto, terminal,
// synthetic or none) against the attached terminal and the input monitoring
// probe. auto picks the terminal when stdin is a tty and the synthetic
// timeline otherwise.
func DetectEnvironment(mode string, lookup permissions.LookupEnvFunc) Environment {
	probe := permissions.ProbeInputMonitoring(lookup)
	env := Environment{
		Provider:   ProviderSynthetic,
		Available:  true,
		Permission: probe.StatusString(),
		Message:    probe.Message,
		Guidance:   probe.Guidance,
	}

	switch mode {
	case "none":
		env.Provider = ProviderNone
		env.Message = "input listeners disabled by configuration"
		return env
	case "synthetic":
		env.Message = "synthetic input timeline"
		return env
	case "terminal":
		env.Provider = ProviderTerminal
	default:
		if stdinIsTerminal() {
			env.Provider = ProviderTerminal
		} else {
			env.Message = "stdin is not a terminal; using synthetic input timeline"
		}
	}

	if env.Provider == ProviderTerminal && probe.Denied() {
		env.Available = false
		if env.Message == "" {
			env.Message = ErrInputPermission.Error()
		}
	}
	return env
}

// Source builds the listener described by the environment, or nil when input
// capture is disabled or unavailable.
func (e Environment) Source() Source {
	if !e.Available {
		return nil
	}
	switch e.Provider {
	case ProviderTerminal:
		return NewTerminalSource()
	case ProviderSynthetic:
		return NewSyntheticSource()
	default:
		return nil
	}
}
