package events

import "errors"

var (
	// ErrInputPermission indicates the host refused input monitoring.
	ErrInputPermission = errors.New("input monitoring permission required for event capture")
	// ErrStopRequested is returned by an input source when the user asked to end the session.
	ErrStopRequested = errors.New("stop requested from input source")
	// ErrNotTerminal indicates the terminal listener was attached to something other than a tty.
	ErrNotTerminal = errors.New("input is not a terminal")
)
