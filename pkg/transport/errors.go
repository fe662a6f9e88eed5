package transport

import "errors"

// Errors returned by the transport package.
var (
	// ErrClosed is returned for operations on a closed transport.
	ErrClosed = errors.New("transport: closed")

	// ErrInvalidAddress is returned when Send is given a nil address.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrDatagramTooLarge is returned when a datagram exceeds
	// MaxDatagramSize.
	ErrDatagramTooLarge = errors.New("transport: datagram too large")
)
