package localbus

import "errors"

// Domain-specific errors for bus operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed is returned when the initial connection attempt fails.
	ErrConnectionFailed = errors.New("localbus: connection failed")

	// ErrNotConnected is returned when attempting operations on a closed bus.
	ErrNotConnected = errors.New("localbus: not connected")

	// ErrUnknownHandle is returned when a handle does not refer to a
	// registered object.
	ErrUnknownHandle = errors.New("localbus: unknown handle")

	// ErrUnknownAttribute is returned when updating an attribute that is not
	// part of the object's schema.
	ErrUnknownAttribute = errors.New("localbus: unknown attribute")

	// ErrInvalidPath is returned when registering an object with an empty path.
	ErrInvalidPath = errors.New("localbus: path cannot be empty")
)
