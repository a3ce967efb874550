package localbus

import "context"

// Handle identifies a registered service object for update and unregister
// calls. Handles are opaque; callers must not derive meaning from them.
type Handle string

// Schema describes the typed attributes of a service object.
//
// Attributes start with no value ("unknown"); monitoring software treats a
// null reading as not-yet-reported rather than zero.
type Schema struct {
	// ServiceType is the declared type of the service (e.g. "temperature").
	ServiceType string

	// Attributes lists the attribute names the object carries.
	Attributes []string
}

// Bus is the local service bus the registry exposes device services on.
//
// The registry is the only writer of its objects; monitoring software on the
// bus is read-only. Implementations own their transport and reconnect
// behaviour - the registry treats calls as fast local operations and
// tolerates transient failures without terminating.
type Bus interface {
	// PortalID returns the stable identifier of the host gateway.
	// Devices embed it in their telemetry topics; the registry only reads it.
	PortalID() string

	// Register exposes a new service object at the given path with all
	// attributes set to unknown. The returned handle is valid until
	// Unregister is called.
	Register(ctx context.Context, path string, schema Schema) (Handle, error)

	// Update sets one attribute of a registered object.
	// Returns ErrUnknownHandle if the handle is not registered and
	// ErrUnknownAttribute if the attribute is not part of the object's schema.
	Update(ctx context.Context, handle Handle, attribute string, value any) error

	// Unregister removes a service object from the bus.
	// Returns ErrUnknownHandle if the handle is not registered.
	Unregister(ctx context.Context, handle Handle) error
}
