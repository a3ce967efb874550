package mqtt

import (
	"fmt"
	"strings"
)

// Topic namespaces for the device registration protocol.
//
// The device/* namespace carries the registration handshake between
// announcing devices and this registry. The W/* namespace carries telemetry
// readings published by devices for the downstream gateway; the registry
// never publishes there, but the builder is provided so paths are constructed
// in exactly one place.
const (
	// TopicPrefixDevice is the base for registration protocol topics.
	TopicPrefixDevice = "device"

	// TopicPrefixTelemetry is the base for device telemetry topics.
	TopicPrefixTelemetry = "W"

	// TopicPrefixSystem is the base for the registry's own status topics.
	TopicPrefixSystem = "device-registry/system"
)

// Topics provides builders for the registration protocol topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	replyTopic := topics.DeviceInstance("fe001")
//	// Returns: "device/fe001/DeviceInstance"
type Topics struct{}

// DeviceStatus returns the status announcement topic for a client.
//
// Example: device/fe001/Status
func (Topics) DeviceStatus(clientID string) string {
	return fmt.Sprintf("%s/%s/Status", TopicPrefixDevice, clientID)
}

// DeviceInstance returns the instance reply topic for a client.
// Devices subscribe here before announcing and receive their allocated
// serviceKey to deviceInstance map.
//
// Example: device/fe001/DeviceInstance
func (Topics) DeviceInstance(clientID string) string {
	return fmt.Sprintf("%s/%s/DeviceInstance", TopicPrefixDevice, clientID)
}

// Telemetry returns the topic a device publishes readings on once registered.
// Consumed by the external gateway, not by this registry.
//
// Example: W/portal-8a2f/temperature/0/Temperature
func (Topics) Telemetry(portalID, serviceType string, deviceInstance int, attribute string) string {
	return fmt.Sprintf("%s/%s/%s/%d/%s", TopicPrefixTelemetry, portalID, serviceType, deviceInstance, attribute)
}

// SystemStatus returns the registry's own status topic, used for the
// online/offline last-will messages.
//
// Example: device-registry/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllDeviceStatus returns a pattern matching every client's status topic.
//
// Pattern: device/+/Status
func (Topics) AllDeviceStatus() string {
	return fmt.Sprintf("%s/+/Status", TopicPrefixDevice)
}

// ClientIDFromStatusTopic extracts the client id from a status topic.
// Returns false if the topic is not of the form device/<clientId>/Status.
func (Topics) ClientIDFromStatusTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefixDevice || parts[2] != "Status" || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
