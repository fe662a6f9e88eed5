package discovery

import "errors"

// Errors returned by the discovery package.
var (
	// ErrClosed is returned for operations on a closed advertiser.
	ErrClosed = errors.New("discovery: closed")

	// ErrAlreadyAdvertising is returned when Advertise is called twice.
	ErrAlreadyAdvertising = errors.New("discovery: already advertising")

	// ErrInvalidConfig is returned for configurations missing an
	// instance name or a usable port.
	ErrInvalidConfig = errors.New("discovery: invalid configuration")

	// ErrMissingProtocolID is returned when a TXT record lacks the pid key.
	ErrMissingProtocolID = errors.New("discovery: TXT record missing protocol id")

	// ErrInvalidTXT is returned when a TXT record fails to parse.
	ErrInvalidTXT = errors.New("discovery: invalid TXT record")
)
