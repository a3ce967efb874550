package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteRegistration records a registration lifecycle event.
//
// Events are "connect", "disconnect", "allocate", and "reconnect".
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - event: Lifecycle event name
//   - clientID: The announcing device's client id
//   - serviceCount: Number of services affected by the event
func (c *Client) WriteRegistration(event, clientID string, serviceCount int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"registration",
		map[string]string{
			"event":     event,
			"client_id": clientID,
		},
		map[string]interface{}{
			"services": serviceCount,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteAllocation records a device instance allocation.
//
// Written only for fresh allocations, not for idempotent re-allocations on
// reconnect; dashboards can chart fleet growth per service type from this.
//
// Parameters:
//   - clientID: The announcing device's client id
//   - serviceKey: The device-chosen service key (e.g. "t1")
//   - serviceType: The declared service type (e.g. "temperature")
//   - deviceInstance: The allocated instance number
func (c *Client) WriteAllocation(clientID, serviceKey, serviceType string, deviceInstance int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"allocation",
		map[string]string{
			"client_id":    clientID,
			"service_type": serviceType,
		},
		map[string]interface{}{
			"service_key":     serviceKey,
			"device_instance": deviceInstance,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
