package types

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportFailure marks a single failed transport attempt. Attempts that
	// return false, return an error, or panic are all reported with it.
	ErrTransportFailure = errors.New("transport failure")

	// ErrNoTransports is returned when a dispatcher is built without transports.
	ErrNoTransports = errors.New("no transports configured")

	// ErrUnknownTransportType is returned by the factory for unregistered types.
	ErrUnknownTransportType = errors.New("unknown transport type")

	// ErrInvalidConfig wraps configuration validation failures.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrInvalidMessage wraps message validation failures.
	ErrInvalidMessage = errors.New("invalid message")
)

// AttemptError describes why one transport attempt failed
type AttemptError struct {
	Transport string // Transport name as used in logs and metrics
	Attempt   int    // Zero-based attempt index within the transport's budget
	Cause     error  // Underlying error, nil when the transport returned false
	Panicked  bool   // True when the transport panicked
}

// NewAttemptError builds an AttemptError for the given attempt
func NewAttemptError(transport string, attempt int, cause error) *AttemptError {
	return &AttemptError{
		Transport: transport,
		Attempt:   attempt,
		Cause:     cause,
	}
}

// Error implements the error interface
func (e *AttemptError) Error() string {
	switch {
	case e.Panicked:
		return fmt.Sprintf("[%s] attempt %d panicked: %v", e.Transport, e.Attempt+1, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("[%s] attempt %d failed: %v", e.Transport, e.Attempt+1, e.Cause)
	default:
		return fmt.Sprintf("[%s] attempt %d failed: transport reported no delivery", e.Transport, e.Attempt+1)
	}
}

// Unwrap returns the underlying cause for errors.Is/As
func (e *AttemptError) Unwrap() error {
	return e.Cause
}

// Is makes every AttemptError match ErrTransportFailure
func (e *AttemptError) Is(target error) bool {
	return target == ErrTransportFailure
}

// IsTransportFailure reports whether err describes a failed transport attempt
func IsTransportFailure(err error) bool {
	return errors.Is(err, ErrTransportFailure)
}
