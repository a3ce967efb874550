package expose

import "github.com/iotforge/device-registry/internal/localbus"

// Attribute names shared by every exposed object.
const (
	AttrCustomName     = "CustomName"
	AttrDeviceInstance = "DeviceInstance"
	AttrClientID       = "ClientId"
	AttrConnected      = "Connected"
)

// serviceSchemas maps a service type to the attributes its bus object
// carries. The table is static; types are added here as new device firmware
// ships support for them.
var serviceSchemas = map[string][]string{
	"temperature": {"Temperature", "Pressure", "Humidity"},
	"tank":        {"Level", "Remaining", "Capacity", "FluidType"},
}

// placeholderAttributes is the schema used for service types not present in
// the catalog. The object still exists on the bus so the device remains
// visible, it just carries no typed attributes.
var placeholderAttributes = []string{}

// SchemaFor returns the bus schema for a service type and whether the type
// is known to the catalog. Unknown types get a placeholder schema.
//
// Every schema carries the common identity attributes in addition to the
// type-specific ones.
func SchemaFor(serviceType string) (localbus.Schema, bool) {
	typed, known := serviceSchemas[serviceType]
	if !known {
		typed = placeholderAttributes
	}

	attrs := make([]string, 0, len(typed)+4)
	attrs = append(attrs, AttrClientID, AttrConnected, AttrCustomName, AttrDeviceInstance)
	attrs = append(attrs, typed...)

	return localbus.Schema{
		ServiceType: serviceType,
		Attributes:  attrs,
	}, known
}

// KnownTypes returns the service types present in the catalog.
func KnownTypes() []string {
	types := make([]string, 0, len(serviceSchemas))
	for t := range serviceSchemas {
		types = append(types, t)
	}
	return types
}
