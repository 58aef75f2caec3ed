package protocol

import "errors"

// Errors surfaced by protocol clients and the dispatcher.
//
// Thing-level failures (not found, unbound) pass through clients unchanged
// and are matched with the thing package sentinels instead.
var (
	// ErrLifecycle wraps every failure of Start, Stop, Init or Destroy.
	ErrLifecycle = errors.New("protocol: lifecycle failure")

	// ErrTransport wraps opaque failures inside a client's four verbs.
	ErrTransport = errors.New("protocol: transport failure")

	// ErrNotStarted is returned by verbs called on a client that is not started.
	ErrNotStarted = errors.New("protocol: client not started")

	// ErrNotInitialised is returned by ClientFactory.Client before Init
	// or after Destroy.
	ErrNotInitialised = errors.New("protocol: factory not initialised")

	// ErrUnsupportedScheme is returned when no client serves a URI's scheme.
	ErrUnsupportedScheme = errors.New("protocol: unsupported scheme")

	// ErrSchemeConflict is returned when two clients claim the same scheme.
	ErrSchemeConflict = errors.New("protocol: scheme already registered")

	// ErrNoSchemes is returned when registering a client that serves no scheme.
	ErrNoSchemes = errors.New("protocol: client serves no schemes")

	// ErrInvalidResource is returned for URIs outside the resource path convention.
	ErrInvalidResource = errors.New("protocol: invalid resource")

	// ErrInvalidContent wraps payloads that cannot be decoded as their
	// declared media type.
	ErrInvalidContent = errors.New("protocol: invalid content")

	// ErrOperationNotAllowed is returned for a verb the target resource kind
	// does not support, such as writing an action.
	ErrOperationNotAllowed = errors.New("protocol: operation not allowed on resource")
)
