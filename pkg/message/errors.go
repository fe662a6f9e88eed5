package message

import "errors"

// Errors returned by the message package.
var (
	// ErrFragmentMismatch is returned when a fragment disagrees with state
	// already recorded for its fragmentation id: a different total length,
	// a different reliability flag, or overlapping bytes that differ.
	ErrFragmentMismatch = errors.New("message: fragment inconsistent with existing state")

	// ErrFragmentBounds is returned when a fragment's byte range extends
	// past its declared total length.
	ErrFragmentBounds = errors.New("message: fragment range out of bounds")

	// ErrMessageTooLong is returned when a fragment declares a total
	// length above the configured maximum.
	ErrMessageTooLong = errors.New("message: message exceeds maximum length")

	// ErrAckOutOfRange is returned when an acknowledgement covers bytes
	// outside the message it references.
	ErrAckOutOfRange = errors.New("message: acknowledged range out of bounds")
)
