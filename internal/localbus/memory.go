package localbus

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBus is an in-process Bus implementation.
//
// It holds registered objects and their attribute values in memory and is
// used by tests that need to observe what the exposer published without a
// NATS server. All methods are safe for concurrent use.
type MemoryBus struct {
	portalID string

	mu      sync.RWMutex
	nextID  int
	objects map[Handle]*memoryObject
}

// memoryObject holds one registered object and its current attribute values.
type memoryObject struct {
	path   string
	schema Schema
	values map[string]any
}

// NewMemoryBus creates an empty in-memory bus with the given portal id.
func NewMemoryBus(portalID string) *MemoryBus {
	return &MemoryBus{
		portalID: portalID,
		objects:  make(map[Handle]*memoryObject),
	}
}

// PortalID returns the portal id the bus was created with.
func (b *MemoryBus) PortalID() string {
	return b.portalID
}

// Register exposes a new service object with all attributes unknown (nil).
func (b *MemoryBus) Register(_ context.Context, path string, schema Schema) (Handle, error) {
	if path == "" {
		return "", ErrInvalidPath
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	handle := Handle(fmt.Sprintf("mem-%d", b.nextID))

	values := make(map[string]any, len(schema.Attributes))
	for _, attr := range schema.Attributes {
		values[attr] = nil
	}
	b.objects[handle] = &memoryObject{path: path, schema: schema, values: values}

	return handle, nil
}

// Update sets one attribute of a registered object.
func (b *MemoryBus) Update(_ context.Context, handle Handle, attribute string, value any) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	obj, ok := b.objects[handle]
	if !ok {
		return ErrUnknownHandle
	}
	if !obj.schema.hasAttribute(attribute) {
		return fmt.Errorf("%w: %q on %s", ErrUnknownAttribute, attribute, obj.path)
	}

	obj.values[attribute] = value
	return nil
}

// Unregister removes a service object.
func (b *MemoryBus) Unregister(_ context.Context, handle Handle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.objects[handle]; !ok {
		return ErrUnknownHandle
	}
	delete(b.objects, handle)
	return nil
}

// Paths returns the paths of all currently registered objects.
func (b *MemoryBus) Paths() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	paths := make([]string, 0, len(b.objects))
	for _, obj := range b.objects {
		paths = append(paths, obj.path)
	}
	return paths
}

// Object returns the schema and current attribute values for the object at
// the given path. The second return is false if no such object exists.
func (b *MemoryBus) Object(path string) (Schema, map[string]any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, obj := range b.objects {
		if obj.path == path {
			values := make(map[string]any, len(obj.values))
			for k, v := range obj.values {
				values[k] = v
			}
			return obj.schema, values, true
		}
	}
	return Schema{}, nil, false
}

// Len returns the number of registered objects.
func (b *MemoryBus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
