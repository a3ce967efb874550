package device

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/iotforge/device-registry/internal/infrastructure/logging"
)

// Registry allocates and tracks stable device instance numbers.
//
// Every (clientID, serviceKey, serviceType) triple maps to exactly one
// non-negative integer that is unique among all services of the same type.
// Once assigned, a number is never changed and never recycled, so a device
// keeps its identity across reconnects and restarts.
//
// The registry is driven by a single event loop and is deliberately
// unsynchronised. Callers must not share one Registry between goroutines.
type Registry struct {
	repo   Repository
	logger *logging.Logger

	// active tracks services currently announced as connected,
	// keyed by clientID then serviceKey.
	active map[string]map[string]*ServiceInstance
}

// NewRegistry creates a registry backed by the given repository.
func NewRegistry(repo Repository, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	return &Registry{
		repo:   repo,
		logger: logger,
		active: make(map[string]map[string]*ServiceInstance),
	}
}

// Allocate resolves the device instance for a composite key, assigning a new
// one if the key has never been seen. The mapping is persisted before the
// call returns, so the caller may expose and reply immediately.
//
// Allocation is idempotent: repeated calls for the same key return the same
// instance number. Storage failures are wrapped in ErrStorageUnavailable and
// leave no partial state.
func (r *Registry) Allocate(ctx context.Context, clientID, serviceKey, serviceType string) (*ServiceInstance, error) {
	if clientID == "" || serviceKey == "" || serviceType == "" {
		return nil, fmt.Errorf("%w: clientID, serviceKey and serviceType must be non-empty", ErrInvalidKey)
	}

	// Already active this session, nothing to do.
	if svc := r.lookupActive(clientID, serviceKey); svc != nil && svc.ServiceType == serviceType {
		return svc, nil
	}

	fresh := false
	mapping, err := r.repo.GetMapping(ctx, clientID, serviceKey, serviceType)
	switch {
	case err == nil:
		// Known device reconnecting, keep its number.
	case errors.Is(err, ErrMappingNotFound):
		mapping, err = r.assign(ctx, clientID, serviceKey, serviceType)
		if err != nil {
			return nil, err
		}
		fresh = true
	default:
		return nil, fmt.Errorf("%w: loading mapping for %s/%s: %v", ErrStorageUnavailable, clientID, serviceKey, err)
	}

	svc := &ServiceInstance{InstanceMapping: *mapping, Active: true, Fresh: fresh}
	r.markActive(svc)
	return svc, nil
}

// assign picks the smallest unused instance number for serviceType and
// persists the new mapping.
func (r *Registry) assign(ctx context.Context, clientID, serviceKey, serviceType string) (*InstanceMapping, error) {
	reserved, err := r.repo.ReservedInstances(ctx, serviceType)
	if err != nil {
		return nil, fmt.Errorf("%w: listing reserved instances for %s: %v", ErrStorageUnavailable, serviceType, err)
	}

	mapping := &InstanceMapping{
		ClientID:       clientID,
		ServiceKey:     serviceKey,
		ServiceType:    serviceType,
		DeviceInstance: smallestUnused(reserved),
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if err := r.repo.CreateMapping(ctx, mapping); err != nil {
		return nil, fmt.Errorf("%w: persisting mapping for %s/%s: %v", ErrStorageUnavailable, clientID, serviceKey, err)
	}

	r.logger.Info("assigned device instance",
		"client_id", clientID,
		"service_key", serviceKey,
		"service_type", serviceType,
		"device_instance", mapping.DeviceInstance,
	)
	return mapping, nil
}

// Release marks a single service inactive. The persisted mapping is kept so
// the instance number survives for the next announcement.
func (r *Registry) Release(clientID, serviceKey string) *ServiceInstance {
	svc := r.lookupActive(clientID, serviceKey)
	if svc == nil {
		return nil
	}
	svc.Active = false
	delete(r.active[clientID], serviceKey)
	if len(r.active[clientID]) == 0 {
		delete(r.active, clientID)
	}
	return svc
}

// ReleaseAll marks every active service of a client inactive and returns
// them, sorted by service key for deterministic teardown.
func (r *Registry) ReleaseAll(clientID string) []*ServiceInstance {
	services := r.active[clientID]
	if len(services) == 0 {
		return nil
	}

	released := make([]*ServiceInstance, 0, len(services))
	for _, svc := range services {
		svc.Active = false
		released = append(released, svc)
	}
	delete(r.active, clientID)

	sort.Slice(released, func(i, j int) bool {
		return released[i].ServiceKey < released[j].ServiceKey
	})
	return released
}

// ActiveServices returns the currently active services of a client, sorted
// by service key.
func (r *Registry) ActiveServices(clientID string) []*ServiceInstance {
	services := r.active[clientID]
	if len(services) == 0 {
		return nil
	}

	out := make([]*ServiceInstance, 0, len(services))
	for _, svc := range services {
		out = append(out, svc)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ServiceKey < out[j].ServiceKey
	})
	return out
}

// SetCustomName persists a display name for a service and updates the active
// copy when present.
func (r *Registry) SetCustomName(ctx context.Context, clientID, serviceKey, serviceType, name string) error {
	if err := r.repo.SetCustomName(ctx, clientID, serviceKey, serviceType, name); err != nil {
		if errors.Is(err, ErrMappingNotFound) {
			return err
		}
		return fmt.Errorf("%w: updating custom name for %s/%s: %v", ErrStorageUnavailable, clientID, serviceKey, err)
	}
	if svc := r.lookupActive(clientID, serviceKey); svc != nil {
		svc.CustomName = name
	}
	return nil
}

func (r *Registry) lookupActive(clientID, serviceKey string) *ServiceInstance {
	services, ok := r.active[clientID]
	if !ok {
		return nil
	}
	return services[serviceKey]
}

func (r *Registry) markActive(svc *ServiceInstance) {
	services, ok := r.active[svc.ClientID]
	if !ok {
		services = make(map[string]*ServiceInstance)
		r.active[svc.ClientID] = services
	}
	services[svc.ServiceKey] = svc
}

// smallestUnused returns the smallest non-negative integer absent from the
// given set of instance numbers.
func smallestUnused(reserved []int) int {
	taken := make(map[int]struct{}, len(reserved))
	for _, n := range reserved {
		taken[n] = struct{}{}
	}
	for n := 0; ; n++ {
		if _, ok := taken[n]; !ok {
			return n
		}
	}
}
