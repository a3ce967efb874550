package localbus

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryBus_RegisterAndObject(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus("portal-test")

	schema := Schema{
		ServiceType: "temperature",
		Attributes:  []string{"Temperature", "Pressure", "Humidity"},
	}

	handle, err := bus.Register(ctx, "service/temperature/0", schema)
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if handle == "" {
		t.Fatal("Register() returned empty handle")
	}

	got, values, ok := bus.Object("service/temperature/0")
	if !ok {
		t.Fatal("Object() not found after Register()")
	}
	if got.ServiceType != "temperature" {
		t.Errorf("schema service type = %q", got.ServiceType)
	}
	if len(values) != 3 {
		t.Fatalf("attribute count = %d, want 3", len(values))
	}
	for attr, v := range values {
		if v != nil {
			t.Errorf("attribute %s initial value = %v, want nil (unknown)", attr, v)
		}
	}
}

func TestMemoryBus_RegisterEmptyPath(t *testing.T) {
	bus := NewMemoryBus("portal-test")
	if _, err := bus.Register(context.Background(), "", Schema{}); !errors.Is(err, ErrInvalidPath) {
		t.Errorf("Register(\"\") error = %v, want ErrInvalidPath", err)
	}
}

func TestMemoryBus_Update(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus("portal-test")

	handle, err := bus.Register(ctx, "service/temperature/0", Schema{
		ServiceType: "temperature",
		Attributes:  []string{"Temperature"},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := bus.Update(ctx, handle, "Temperature", 21.5); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	_, values, _ := bus.Object("service/temperature/0")
	if values["Temperature"] != 21.5 {
		t.Errorf("Temperature = %v, want 21.5", values["Temperature"])
	}

	if err := bus.Update(ctx, handle, "Pressure", 1000.0); !errors.Is(err, ErrUnknownAttribute) {
		t.Errorf("Update(unknown attribute) error = %v, want ErrUnknownAttribute", err)
	}
	if err := bus.Update(ctx, Handle("bogus"), "Temperature", 1.0); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("Update(unknown handle) error = %v, want ErrUnknownHandle", err)
	}
}

func TestMemoryBus_Unregister(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus("portal-test")

	handle, err := bus.Register(ctx, "service/tank/0", Schema{
		ServiceType: "tank",
		Attributes:  []string{"Level"},
	})
	if err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	if err := bus.Unregister(ctx, handle); err != nil {
		t.Fatalf("Unregister() error = %v", err)
	}
	if bus.Len() != 0 {
		t.Errorf("Len() = %d after unregister, want 0", bus.Len())
	}

	if err := bus.Unregister(ctx, handle); !errors.Is(err, ErrUnknownHandle) {
		t.Errorf("second Unregister() error = %v, want ErrUnknownHandle", err)
	}
}

func TestSchema_HasAttribute(t *testing.T) {
	s := Schema{ServiceType: "temperature", Attributes: []string{"Temperature", "Humidity"}}

	if !s.hasAttribute("Temperature") {
		t.Error("hasAttribute(Temperature) = false")
	}
	if s.hasAttribute("Pressure") {
		t.Error("hasAttribute(Pressure) = true, want false")
	}
}
