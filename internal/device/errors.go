package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrStorageUnavailable) {
//	    // abort the event, the device will retry its announcement
//	}
var (
	// ErrMappingNotFound is returned when no persisted instance mapping
	// exists for a (client, service key, service type) composite.
	ErrMappingNotFound = errors.New("device: mapping not found")

	// ErrStorageUnavailable is returned when the persistence store cannot
	// commit an allocation. No instance may be exposed without a committed
	// mapping.
	ErrStorageUnavailable = errors.New("device: storage unavailable")

	// ErrInvalidKey is returned when a client id, service key, or service
	// type is empty.
	ErrInvalidKey = errors.New("device: invalid key")
)
