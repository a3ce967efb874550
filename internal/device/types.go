package device

import "time"

// InstanceMapping is one persisted registry row: the stable numeric identity
// assigned to a (client, service key, service type) composite.
//
// Matches the device_instances table in the migrations package.
type InstanceMapping struct {
	ClientID       string `json:"client_id"`
	ServiceKey     string `json:"service_key"`
	ServiceType    string `json:"service_type"`
	DeviceInstance int    `json:"device_instance"`

	// CustomName is an optional operator-set display name, persisted so it
	// survives reconnects. Empty means unset.
	CustomName string `json:"custom_name,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ServiceInstance is the runtime state of one announced service: its
// persisted mapping plus whether the owning client is currently connected.
type ServiceInstance struct {
	InstanceMapping

	// Active is true while the owning client is connected. It is runtime
	// state owned by the Registry and is not persisted; all services start
	// inactive after a restart until their device re-announces.
	Active bool

	// Fresh is true when this allocation assigned a brand new instance
	// number rather than resolving an existing mapping. Consumers that act
	// on first-time allocations should clear it once handled.
	Fresh bool
}
