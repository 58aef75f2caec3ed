package broker

import "errors"

// Domain-specific errors for the embedded broker.
var (
	// ErrAlreadyRunning is returned when Start is called on a running broker.
	ErrAlreadyRunning = errors.New("broker: already running")

	// ErrNotRunning is returned when publishing through a stopped broker.
	ErrNotRunning = errors.New("broker: not running")

	// ErrStartFailed is returned when the listener cannot be attached.
	ErrStartFailed = errors.New("broker: start failed")
)
