package announce

import (
	"errors"
	"testing"
)

func newTestListener(t *testing.T) *Listener {
	t.Helper()
	l, err := NewListener(16, nil)
	if err != nil {
		t.Fatalf("NewListener error: %v", err)
	}
	return l
}

func TestDecodeConnect(t *testing.T) {
	l := newTestListener(t)

	payload := []byte(`{
		"clientid": "fe001",
		"connected": 1,
		"version": "v2.4",
		"services": {"t1": "temperature", "tank1": "tank"}
	}`)

	event, err := l.Decode("device/fe001/Status", payload)
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if event.Kind != EventConnect {
		t.Errorf("Kind = %v, want EventConnect", event.Kind)
	}
	if event.ClientID != "fe001" {
		t.Errorf("ClientID = %s, want fe001", event.ClientID)
	}
	if event.Version != "v2.4" {
		t.Errorf("Version = %s, want v2.4", event.Version)
	}
	if len(event.Services) != 2 || event.Services["t1"] != "temperature" || event.Services["tank1"] != "tank" {
		t.Errorf("Services = %v", event.Services)
	}
}

func TestDecodeDisconnect(t *testing.T) {
	l := newTestListener(t)

	tests := []struct {
		name    string
		payload string
	}{
		{"plain", `{"clientid": "fe001", "connected": 0}`},
		{"with stale services", `{"clientid": "fe001", "connected": 0, "services": {"t1": "temperature"}}`},
		{"with mangled services", `{"clientid": "fe001", "connected": 0, "services": "garbage"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := l.Decode("device/fe001/Status", []byte(tt.payload))
			if err != nil {
				t.Fatalf("Decode error: %v", err)
			}
			if event.Kind != EventDisconnect {
				t.Errorf("Kind = %v, want EventDisconnect", event.Kind)
			}
			if event.Services != nil {
				t.Errorf("disconnect carried services: %v", event.Services)
			}
		})
	}
}

func TestDecodeEmptyPayloadIsDisconnect(t *testing.T) {
	l := newTestListener(t)

	event, err := l.Decode("device/fe001/Status", []byte("  "))
	if err != nil {
		t.Fatalf("Decode error: %v", err)
	}
	if event.Kind != EventDisconnect || event.ClientID != "fe001" {
		t.Errorf("event = %+v, want disconnect for fe001", event)
	}

	_, err = l.Decode("not/a/status/topic", nil)
	if !errors.Is(err, ErrMalformedAnnouncement) {
		t.Errorf("empty payload on bad topic = %v, want ErrMalformedAnnouncement", err)
	}
}

func TestDecodeMalformed(t *testing.T) {
	l := newTestListener(t)

	tests := []struct {
		name    string
		payload string
	}{
		{"not JSON", `{{{{`},
		{"JSON array", `[1, 2, 3]`},
		{"missing clientid", `{"connected": 1, "services": {"t1": "temperature"}}`},
		{"empty clientid", `{"clientid": "", "connected": 1, "services": {"t1": "temperature"}}`},
		{"missing connected", `{"clientid": "fe001", "services": {"t1": "temperature"}}`},
		{"connected out of range", `{"clientid": "fe001", "connected": 2, "services": {"t1": "temperature"}}`},
		{"connected as bool", `{"clientid": "fe001", "connected": true, "services": {"t1": "temperature"}}`},
		{"connect without services", `{"clientid": "fe001", "connected": 1}`},
		{"connect with empty services", `{"clientid": "fe001", "connected": 1, "services": {}}`},
		{"connect with non-string type", `{"clientid": "fe001", "connected": 1, "services": {"t1": 7}}`},
		{"connect with services array", `{"clientid": "fe001", "connected": 1, "services": ["temperature"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Decode("device/fe001/Status", []byte(tt.payload))
			if !errors.Is(err, ErrMalformedAnnouncement) {
				t.Errorf("Decode = %v, want ErrMalformedAnnouncement", err)
			}
		})
	}
}

func TestHandleMessageDeliversEvents(t *testing.T) {
	l := newTestListener(t)

	payload := []byte(`{"clientid": "fe001", "connected": 1, "services": {"t1": "temperature"}}`)
	if err := l.HandleMessage("device/fe001/Status", payload); err != nil {
		t.Fatalf("HandleMessage error: %v", err)
	}

	select {
	case event := <-l.Events():
		if event.ClientID != "fe001" || event.Kind != EventConnect {
			t.Errorf("unexpected event: %+v", event)
		}
	default:
		t.Fatal("no event delivered")
	}
}

func TestHandleMessageDropsMalformed(t *testing.T) {
	l := newTestListener(t)

	// The error return stays nil so the MQTT wrapper keeps the subscription.
	if err := l.HandleMessage("device/fe001/Status", []byte(`{{{`)); err != nil {
		t.Fatalf("HandleMessage error: %v", err)
	}

	select {
	case event := <-l.Events():
		t.Errorf("malformed payload produced event: %+v", event)
	default:
	}
}

func TestHandleMessageAfterClose(t *testing.T) {
	l, err := NewListener(0, nil)
	if err != nil {
		t.Fatalf("NewListener error: %v", err)
	}
	l.Close()

	payload := []byte(`{"clientid": "fe001", "connected": 0}`)
	err = l.HandleMessage("device/fe001/Status", payload)
	if !errors.Is(err, ErrListenerClosed) {
		t.Errorf("HandleMessage after Close = %v, want ErrListenerClosed", err)
	}
}
