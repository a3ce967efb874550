package localbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/iotforge/device-registry/internal/infrastructure/config"
)

// Connection constants.
const (
	// connectName identifies this client on the NATS server.
	connectName = "device-registry"

	// reconnectWait is the delay between reconnection attempts.
	reconnectWait = 2 * time.Second

	// connectTimeout is the maximum time to wait for the initial connection.
	connectTimeout = 10 * time.Second
)

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Info(msg string, args ...any)
}

// NATSBus implements Bus over a NATS connection.
//
// Service objects are announced on <prefix>.objects and each attribute value
// is published on its own subject, <prefix>.<path with dots>.<attribute>,
// so monitoring software can subscribe per object, per attribute, or to the
// whole namespace with a wildcard.
type NATSBus struct {
	conn     *nats.Conn
	portalID string
	prefix   string

	mu      sync.RWMutex
	objects map[Handle]*object

	logger Logger
}

// object tracks a registered service object and its schema.
type object struct {
	path   string
	schema Schema
}

// objectEvent is the payload published on the objects subject for
// register/unregister lifecycle changes.
type objectEvent struct {
	Event       string   `json:"event"`
	Path        string   `json:"path"`
	ServiceType string   `json:"service_type"`
	Attributes  []string `json:"attributes,omitempty"`
	PortalID    string   `json:"portal_id"`
}

// attributeValue is the payload published for each attribute.
// A null value means the attribute has not been reported yet ("unknown").
type attributeValue struct {
	Value any `json:"value"`
}

// ConnectNATS establishes the NATS connection backing the local bus.
//
// The connection reconnects indefinitely with a fixed wait; during an
// outage, publishes are buffered by the NATS client and the registry keeps
// processing announcements.
//
// Parameters:
//   - cfg: Bus configuration from config.yaml
//
// Returns:
//   - *NATSBus: Connected bus ready for use
//   - error: If the initial connection fails
func ConnectNATS(cfg config.BusConfig) (*NATSBus, error) {
	b := &NATSBus{
		portalID: cfg.PortalID,
		prefix:   cfg.SubjectPrefix,
		objects:  make(map[Handle]*object),
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name(connectName),
		nats.Timeout(connectTimeout),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if b.logger != nil {
				b.logger.Warn("bus disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			if b.logger != nil {
				b.logger.Info("bus reconnected", "url", nc.ConnectedUrl())
			}
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	b.conn = conn
	return b, nil
}

// SetLogger sets a logger for connection events.
func (b *NATSBus) SetLogger(logger Logger) {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// PortalID returns the stable portal identifier from configuration.
func (b *NATSBus) PortalID() string {
	return b.portalID
}

// Register exposes a new service object and publishes its initial
// (unknown) attribute values.
func (b *NATSBus) Register(_ context.Context, path string, schema Schema) (Handle, error) {
	if path == "" {
		return "", ErrInvalidPath
	}
	if b.conn == nil || b.conn.IsClosed() {
		return "", ErrNotConnected
	}

	handle := Handle(uuid.NewString())

	b.mu.Lock()
	b.objects[handle] = &object{path: path, schema: schema}
	b.mu.Unlock()

	if err := b.publishJSON(b.objectsSubject(), objectEvent{
		Event:       "register",
		Path:        path,
		ServiceType: schema.ServiceType,
		Attributes:  schema.Attributes,
		PortalID:    b.portalID,
	}); err != nil {
		b.mu.Lock()
		delete(b.objects, handle)
		b.mu.Unlock()
		return "", err
	}

	// Every attribute starts unknown (null) until the device reports.
	for _, attr := range schema.Attributes {
		if err := b.publishJSON(b.attributeSubject(path, attr), attributeValue{Value: nil}); err != nil {
			return handle, err
		}
	}

	return handle, nil
}

// Update sets one attribute of a registered object.
func (b *NATSBus) Update(_ context.Context, handle Handle, attribute string, value any) error {
	if b.conn == nil || b.conn.IsClosed() {
		return ErrNotConnected
	}

	b.mu.RLock()
	obj, ok := b.objects[handle]
	b.mu.RUnlock()
	if !ok {
		return ErrUnknownHandle
	}
	if !obj.schema.hasAttribute(attribute) {
		return fmt.Errorf("%w: %q on %s", ErrUnknownAttribute, attribute, obj.path)
	}

	return b.publishJSON(b.attributeSubject(obj.path, attribute), attributeValue{Value: value})
}

// Unregister removes a service object from the bus.
func (b *NATSBus) Unregister(_ context.Context, handle Handle) error {
	if b.conn == nil || b.conn.IsClosed() {
		return ErrNotConnected
	}

	b.mu.Lock()
	obj, ok := b.objects[handle]
	if ok {
		delete(b.objects, handle)
	}
	b.mu.Unlock()
	if !ok {
		return ErrUnknownHandle
	}

	return b.publishJSON(b.objectsSubject(), objectEvent{
		Event:       "unregister",
		Path:        obj.path,
		ServiceType: obj.schema.ServiceType,
		PortalID:    b.portalID,
	})
}

// Close flushes pending publishes and closes the connection.
func (b *NATSBus) Close() error {
	if b.conn == nil {
		return nil
	}
	// Flush so a graceful shutdown does not drop buffered object events.
	if err := b.conn.FlushTimeout(connectTimeout); err != nil && b.logger != nil {
		b.logger.Warn("bus flush on close failed", "error", err)
	}
	b.conn.Close()
	return nil
}

// HealthCheck verifies the bus connection is alive.
func (b *NATSBus) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("bus health check: %w", ctx.Err())
	default:
	}

	if b.conn == nil || !b.conn.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// publishJSON marshals v and publishes it on the given subject.
func (b *NATSBus) publishJSON(subject string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("localbus: encoding payload: %w", err)
	}
	if err := b.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("localbus: publishing %s: %w", subject, err)
	}
	return nil
}

// objectsSubject returns the lifecycle event subject.
//
// Example: devicebus.objects
func (b *NATSBus) objectsSubject() string {
	return b.prefix + ".objects"
}

// attributeSubject returns the value subject for one attribute of an object.
//
// Example: devicebus.service.temperature.0.Temperature
func (b *NATSBus) attributeSubject(path, attribute string) string {
	return b.prefix + "." + strings.ReplaceAll(path, "/", ".") + "." + attribute
}

// hasAttribute reports whether the schema contains the named attribute.
func (s Schema) hasAttribute(name string) bool {
	for _, a := range s.Attributes {
		if a == name {
			return true
		}
	}
	return false
}
