package announce

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/iotforge/device-registry/internal/infrastructure/logging"
	"github.com/iotforge/device-registry/internal/infrastructure/mqtt"
)

// EventKind distinguishes connect and disconnect announcements.
type EventKind int

const (
	// EventConnect is a device announcing itself and its services.
	EventConnect EventKind = iota
	// EventDisconnect is a device signing off, by its own hand or through
	// the broker delivering its last will.
	EventDisconnect
)

// Event is one validated status announcement.
type Event struct {
	Kind     EventKind
	ClientID string
	Version  string
	// Services maps service key to service type. Populated only for
	// EventConnect; disconnects tear down whatever is active regardless of
	// what the payload claimed.
	Services map[string]string
}

// statusPayload mirrors the wire format of a status announcement. Services
// stays raw so a disconnect with a mangled services field still parses.
type statusPayload struct {
	ClientID  string          `json:"clientid"`
	Connected int             `json:"connected"`
	Version   string          `json:"version"`
	Services  json.RawMessage `json:"services"`
}

// Listener validates status announcements and feeds them to the manager as
// events on a channel. Validation happens on the MQTT client's handler
// goroutine; everything stateful stays behind the channel so the consumer
// loop remains the only writer.
type Listener struct {
	schema *jsonschema.Schema
	logger *logging.Logger
	events chan Event
	done   chan struct{}
}

// NewListener creates a listener with the given event buffer size.
func NewListener(buffer int, logger *logging.Logger) (*Listener, error) {
	if logger == nil {
		logger = logging.Default()
	}
	schema, err := compileStatusSchema()
	if err != nil {
		return nil, err
	}
	return &Listener{
		schema: schema,
		logger: logger,
		events: make(chan Event, buffer),
		done:   make(chan struct{}),
	}, nil
}

// Subscribe attaches the listener to every device status topic.
func (l *Listener) Subscribe(client *mqtt.Client) error {
	topic := mqtt.Topics{}.AllDeviceStatus()
	if err := client.Subscribe(topic, 1, l.HandleMessage); err != nil {
		return fmt.Errorf("subscribing to %s: %w", topic, err)
	}
	l.logger.Info("listening for device announcements", "topic", topic)
	return nil
}

// Events returns the validated announcement stream.
func (l *Listener) Events() <-chan Event {
	return l.events
}

// Close stops the listener. Pending HandleMessage calls unblock and drop
// their events.
func (l *Listener) Close() {
	close(l.done)
}

// HandleMessage is the MQTT callback for status topics. Malformed payloads
// are logged and dropped; the error return stays nil so the subscription
// keeps flowing.
func (l *Listener) HandleMessage(topic string, payload []byte) error {
	event, err := l.Decode(topic, payload)
	if err != nil {
		l.logger.Warn("dropping malformed announcement",
			"topic", topic,
			"error", err,
		)
		return nil
	}

	select {
	case l.events <- *event:
		return nil
	case <-l.done:
		return ErrListenerClosed
	}
}

// Decode validates a status payload and turns it into an Event.
//
// An empty payload is a retained-message clear (published when a device
// deregisters cleanly) and decodes to a disconnect for the topic's client.
func (l *Listener) Decode(topic string, payload []byte) (*Event, error) {
	if len(bytes.TrimSpace(payload)) == 0 {
		clientID, ok := mqtt.Topics{}.ClientIDFromStatusTopic(topic)
		if !ok {
			return nil, fmt.Errorf("%w: empty payload on unparseable topic %q", ErrMalformedAnnouncement, topic)
		}
		return &Event{Kind: EventDisconnect, ClientID: clientID}, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %v", ErrMalformedAnnouncement, err)
	}
	if err := l.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnnouncement, err)
	}

	var status statusPayload
	if err := json.Unmarshal(payload, &status); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAnnouncement, err)
	}

	event := &Event{ClientID: status.ClientID, Version: status.Version}
	if status.Connected == 0 {
		event.Kind = EventDisconnect
		return event, nil
	}

	event.Kind = EventConnect
	if err := json.Unmarshal(status.Services, &event.Services); err != nil {
		// Schema validation guarantees this, but a decode failure here must
		// not slip through as a connect with no services.
		return nil, fmt.Errorf("%w: services: %v", ErrMalformedAnnouncement, err)
	}
	return event, nil
}
