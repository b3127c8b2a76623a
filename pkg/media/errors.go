package media

import (
	"errors"
	"strings"
)

var (
	// ErrUnknownResolution is returned for resolution names outside the preset table.
	ErrUnknownResolution = errors.New("unknown resolution")
	// ErrBackendUnavailable indicates the selected capture backend cannot run on this host.
	ErrBackendUnavailable = errors.New("capture backend unavailable")
	// ErrAlreadyStarted is returned when starting a pipeline or recorder twice.
	ErrAlreadyStarted = errors.New("media pipeline already started")
	// ErrDevice marks capture or encode failures raised by the pipeline itself.
	ErrDevice = errors.New("capture device failure")
)

type deviceError struct {
	message string
	err     error
}

func (e *deviceError) Error() string {
	if e.err != nil {
		return e.message + ": " + e.err.Error()
	}
	return e.message
}

func (e *deviceError) Unwrap() error { return e.err }

func (e *deviceError) Is(target error) bool {
	return target == ErrDevice
}

func newDeviceError(message string, err error) error {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		trimmed = ErrDevice.Error()
	}
	return &deviceError{message: trimmed, err: err}
}
