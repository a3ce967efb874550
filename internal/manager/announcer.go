package manager

import (
	"fmt"

	"github.com/iotforge/device-registry/internal/device"
	"github.com/iotforge/device-registry/internal/infrastructure/mqtt"
)

// Publisher is the outbound MQTT surface the manager needs.
type Publisher interface {
	PublishJSON(topic string, v any) error
}

// instanceAnnouncer publishes device instance replies back to the announcing
// client.
type instanceAnnouncer struct {
	publisher Publisher
}

// Reply publishes the complete key-to-instance map for a client in a single
// message. Partial replies are never sent; the caller only invokes this once
// every declared service has an instance.
func (a *instanceAnnouncer) Reply(clientID string, services []*device.ServiceInstance) error {
	instances := make(map[string]int, len(services))
	for _, svc := range services {
		instances[svc.ServiceKey] = svc.DeviceInstance
	}

	topic := mqtt.Topics{}.DeviceInstance(clientID)
	if err := a.publisher.PublishJSON(topic, instances); err != nil {
		return fmt.Errorf("publishing instance reply to %s: %w", topic, err)
	}
	return nil
}
