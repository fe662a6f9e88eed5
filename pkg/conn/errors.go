package conn

import "errors"

// Errors returned by the conn package.
var (
	// ErrClosed is returned when sending on a dead or closing connection.
	ErrClosed = errors.New("conn: connection is closed")
)
