// Package mqtt wraps paho.mqtt.golang for the device registration protocol.
//
// The wrapper owns the single long-lived broker connection, restores
// subscriptions after reconnects, and publishes the registry's own
// online/offline status (with a last-will for unclean exits). Reconnection
// is this package's responsibility; the registration core only sees decoded
// messages and transient publish errors.
//
// # Topics
//
// All protocol topics are built through the Topics helpers:
//
//	device/<clientId>/Status          announcements from devices (inbound)
//	device/<clientId>/DeviceInstance  instance replies to devices (outbound)
//	W/<portalId>/<type>/<n>/<Attr>    telemetry (devices to gateway, reference only)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllDeviceStatus(), 1, handleStatus)
package mqtt
