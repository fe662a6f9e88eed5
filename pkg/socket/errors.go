package socket

import "errors"

// Errors returned by the socket package.
var (
	// ErrUnknownHandle is returned for operations against a handle whose
	// connection no longer exists.
	ErrUnknownHandle = errors.New("socket: unknown connection handle")

	// ErrConnectionExists is returned by Open when a connection to the
	// address is already present.
	ErrConnectionExists = errors.New("socket: connection already exists")

	// ErrInvalidConfig is returned by New for configurations the engine
	// cannot operate with (MTU too small for a single fragment, heartbeat
	// interval at or above the liveness timeout, inverted RTO bounds).
	ErrInvalidConfig = errors.New("socket: invalid configuration")
)
