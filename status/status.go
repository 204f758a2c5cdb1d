// Package status defines the errors reported by channel submission,
// completion tracking and scrubbing.
package status

import "errors"

var (
	// ErrInvalidArgument is returned for malformed requests, such as
	// misaligned lengths or unsupported flag combinations.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInsufficientResources is returned when no engine instance is
	// available or a bounded ring is full.
	ErrInsufficientResources = errors.New("insufficient resources")

	// ErrBusyRetry is returned when submission is paused.
	ErrBusyRetry = errors.New("busy, retry later")

	// ErrTimeout is returned when a hardware wait exceeds its deadline.
	ErrTimeout = errors.New("timeout")

	// ErrNotSupported is returned when the requested mode is not available
	// on the engine or platform.
	ErrNotSupported = errors.New("not supported")

	// ErrNoWorkPending is returned when waiting on an empty scrub ring.
	ErrNoWorkPending = errors.New("no work pending")

	// ErrInvalidState is returned when an object is used after Destroy or
	// outside the state an operation requires.
	ErrInvalidState = errors.New("invalid state")

	// ErrChannelError is returned when the hardware reported an error on
	// the channel.
	ErrChannelError = errors.New("channel error")
)

// IsRetryable tells whether the caller may retry the same call later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrBusyRetry) ||
		errors.Is(err, ErrInsufficientResources)
}
