package expose

import (
	"context"
	"fmt"

	"github.com/iotforge/device-registry/internal/device"
	"github.com/iotforge/device-registry/internal/infrastructure/logging"
	"github.com/iotforge/device-registry/internal/localbus"
)

// Exposer projects allocated services onto the local bus as addressable
// objects. One object per active service, registered on allocation and
// removed on release.
//
// Like the registry, the exposer is owned by the event loop and carries no
// locking.
type Exposer struct {
	bus    localbus.Bus
	logger *logging.Logger

	// handles tracks the bus handle for each exposed service,
	// keyed by clientID then serviceKey.
	handles map[string]map[string]localbus.Handle
}

// NewExposer creates an exposer publishing on the given bus.
func NewExposer(bus localbus.Bus, logger *logging.Logger) *Exposer {
	if logger == nil {
		logger = logging.Default()
	}
	return &Exposer{
		bus:     bus,
		logger:  logger,
		handles: make(map[string]map[string]localbus.Handle),
	}
}

// ObjectPath returns the bus path for a service instance.
func ObjectPath(serviceType string, deviceInstance int) string {
	return fmt.Sprintf("service/%s/%d", serviceType, deviceInstance)
}

// Expose registers a bus object for an allocated service. Exposing a service
// that is already exposed is a no-op.
//
// Unknown service types are exposed with a placeholder schema and logged at
// warning level; the allocation itself is unaffected.
func (e *Exposer) Expose(ctx context.Context, svc *device.ServiceInstance) error {
	if e.lookupHandle(svc.ClientID, svc.ServiceKey) != "" {
		return nil
	}

	schema, known := SchemaFor(svc.ServiceType)
	if !known {
		e.logger.Warn("service type not in catalog, exposing placeholder object",
			"client_id", svc.ClientID,
			"service_key", svc.ServiceKey,
			"service_type", svc.ServiceType,
		)
	}

	path := ObjectPath(svc.ServiceType, svc.DeviceInstance)
	handle, err := e.bus.Register(ctx, path, schema)
	if err != nil {
		return fmt.Errorf("registering bus object %s: %w", path, err)
	}

	e.storeHandle(svc.ClientID, svc.ServiceKey, handle)
	e.publishIdentity(ctx, handle, svc)

	e.logger.Debug("exposed service on local bus",
		"client_id", svc.ClientID,
		"service_key", svc.ServiceKey,
		"path", path,
	)
	return nil
}

// publishIdentity fills the common identity attributes after registration.
// Failures here are logged, not returned: the object exists and the
// committed registration state must stand.
func (e *Exposer) publishIdentity(ctx context.Context, handle localbus.Handle, svc *device.ServiceInstance) {
	values := map[string]any{
		AttrClientID:       svc.ClientID,
		AttrConnected:      1,
		AttrDeviceInstance: svc.DeviceInstance,
	}
	if svc.CustomName != "" {
		values[AttrCustomName] = svc.CustomName
	}

	for attr, value := range values {
		if err := e.bus.Update(ctx, handle, attr, value); err != nil {
			e.logger.Error("publishing identity attribute failed",
				"client_id", svc.ClientID,
				"attribute", attr,
				"error", err,
			)
		}
	}
}

// UpdateCustomName pushes a new display name to an exposed object.
// Services that are not currently exposed are skipped.
func (e *Exposer) UpdateCustomName(ctx context.Context, clientID, serviceKey, name string) error {
	handle := e.lookupHandle(clientID, serviceKey)
	if handle == "" {
		return nil
	}
	if err := e.bus.Update(ctx, handle, AttrCustomName, name); err != nil {
		return fmt.Errorf("updating custom name on bus: %w", err)
	}
	return nil
}

// Retract removes the bus object for a single service. Retracting a service
// that is not exposed is a no-op.
func (e *Exposer) Retract(ctx context.Context, clientID, serviceKey string) error {
	handle := e.lookupHandle(clientID, serviceKey)
	if handle == "" {
		return nil
	}

	e.dropHandle(clientID, serviceKey)
	if err := e.bus.Unregister(ctx, handle); err != nil {
		return fmt.Errorf("unregistering bus object: %w", err)
	}

	e.logger.Debug("retracted service from local bus",
		"client_id", clientID,
		"service_key", serviceKey,
	)
	return nil
}

// RetractAll removes every bus object owned by a client. Errors are logged
// per object and the last one is returned; teardown continues regardless so
// a single bus failure cannot strand the remaining objects.
func (e *Exposer) RetractAll(ctx context.Context, clientID string) error {
	services := e.handles[clientID]
	if len(services) == 0 {
		return nil
	}

	var lastErr error
	for serviceKey := range services {
		if err := e.Retract(ctx, clientID, serviceKey); err != nil {
			e.logger.Error("retracting service failed",
				"client_id", clientID,
				"service_key", serviceKey,
				"error", err,
			)
			lastErr = err
		}
	}
	return lastErr
}

// ExposedCount returns the number of objects currently on the bus for a
// client.
func (e *Exposer) ExposedCount(clientID string) int {
	return len(e.handles[clientID])
}

func (e *Exposer) lookupHandle(clientID, serviceKey string) localbus.Handle {
	services, ok := e.handles[clientID]
	if !ok {
		return ""
	}
	return services[serviceKey]
}

func (e *Exposer) storeHandle(clientID, serviceKey string, handle localbus.Handle) {
	services, ok := e.handles[clientID]
	if !ok {
		services = make(map[string]localbus.Handle)
		e.handles[clientID] = services
	}
	services[serviceKey] = handle
}

func (e *Exposer) dropHandle(clientID, serviceKey string) {
	services, ok := e.handles[clientID]
	if !ok {
		return
	}
	delete(services, serviceKey)
	if len(services) == 0 {
		delete(e.handles, clientID)
	}
}
