package announce

import "errors"

var (
	// ErrMalformedAnnouncement indicates a status payload that failed
	// validation. Malformed announcements are logged and dropped without
	// touching registry state.
	ErrMalformedAnnouncement = errors.New("malformed announcement")

	// ErrListenerClosed indicates an event arrived after Close.
	ErrListenerClosed = errors.New("listener closed")
)
