package wire

import "errors"

// Errors returned by the wire package.
var (
	// ErrMalformed is returned when a datagram cannot be decoded: a blob
	// length prefix is zero or overruns the buffer, a tag is unknown, or a
	// blob body has the wrong shape.
	ErrMalformed = errors.New("wire: malformed packet")

	// ErrBlobSize is returned when encoding a blob whose size cannot be
	// represented by the length prefix.
	ErrBlobSize = errors.New("wire: blob size out of range")

	// ErrMTUExceeded is returned when a single blob cannot fit an empty
	// packet within the configured MTU. This indicates a local
	// configuration or engine bug, not a peer fault.
	ErrMTUExceeded = errors.New("wire: blob exceeds MTU")
)
