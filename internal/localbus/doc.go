// Package localbus defines the local service bus that registered device
// services are exposed on, and provides its implementations.
//
// Monitoring and dashboard software observes this bus rather than the MQTT
// broker: each registered device service appears as an object with a fixed
// attribute schema, updated as readings arrive and removed when the device
// disconnects.
//
// Two implementations are provided:
//
//   - NATSBus publishes object lifecycle and attribute values on NATS
//     subjects (production).
//   - MemoryBus keeps objects in memory for tests.
//
// The registry core depends only on the Bus interface; the transport, its
// reconnect behaviour, and the portal identifier all belong to the
// implementation.
package localbus
