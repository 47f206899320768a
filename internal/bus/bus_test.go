package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sharedmem/controller/pkg/xlog"
)

func TestPublishSubscribeOrdering(t *testing.T) {
	b := New(xlog.New(false))
	sub := b.Subscribe()

	b.Publish(New(EventDeviceApproved, DeviceApprovedPayload{DeviceID: "1"}))
	b.Publish(New(EventDeviceDenied, DeviceDeniedPayload{DeviceID: "2"}))

	ctx := context.Background()
	e1, sig1, err := sub.Next(ctx)
	if err != nil || sig1 != SignalValue || e1.Type != EventDeviceApproved {
		t.Fatalf("unexpected first event: %+v %v %v", e1, sig1, err)
	}
	e2, sig2, err := sub.Next(ctx)
	if err != nil || sig2 != SignalValue || e2.Type != EventDeviceDenied {
		t.Fatalf("unexpected second event: %+v %v %v", e2, sig2, err)
	}
}

func TestSubscriberLag(t *testing.T) {
	b := New(xlog.New(false))
	sub := b.Subscribe()

	for i := 0; i < ringSize+10; i++ {
		b.Publish(New(EventMemoryStats, nil))
	}

	_, sig, err := sub.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sig != SignalLag {
		t.Fatalf("expected SignalLag after falling behind the ring, got %v", sig)
	}

	// After the lag signal, the subscriber should resume reading values.
	_, sig2, err := sub.Next(context.Background())
	if err != nil || sig2 != SignalValue {
		t.Fatalf("expected to resume with a value after lag, got %v %v", sig2, err)
	}
}

func TestCloseEndsSubscribers(t *testing.T) {
	b := New(xlog.New(false))
	sub := b.Subscribe()
	b.Close()

	_, sig, err := sub.Next(context.Background())
	if err != nil {
		t.Fatalf("unexpected error on close: %v", err)
	}
	if sig != SignalClosed {
		t.Fatalf("expected SignalClosed, got %v", sig)
	}
}

func TestNextRespectsContextCancellation(t *testing.T) {
	b := New(xlog.New(false))
	sub := b.Subscribe()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, sig, err := sub.Next(ctx)
	if err == nil {
		t.Fatal("expected context deadline error when no event arrives")
	}
	if sig != SignalClosed {
		t.Fatalf("expected SignalClosed on context cancellation, got %v", sig)
	}
}

func TestEventMarshalsPayloadFlat(t *testing.T) {
	e := New(EventDeviceApproved, DeviceApprovedPayload{DeviceID: "dev-1", Name: "pi", Address: "10.0.0.5", RoleID: "role-guest"})

	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshaling event: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshaling event: %v", err)
	}

	if _, ok := decoded["payload"]; ok {
		t.Errorf("expected no nested \"payload\" key, got %s", raw)
	}
	if decoded["type"] != string(EventDeviceApproved) {
		t.Errorf("expected top-level type field, got %s", raw)
	}
	if decoded["device_id"] != "dev-1" {
		t.Errorf("expected device_id flattened to the top level, got %s", raw)
	}
	if decoded["role_id"] != "role-guest" {
		t.Errorf("expected role_id flattened to the top level, got %s", raw)
	}
	if _, ok := decoded["timestamp"]; !ok {
		t.Errorf("expected a top-level timestamp field, got %s", raw)
	}
}

func TestEventMarshalsNilPayload(t *testing.T) {
	e := New(EventRPCServerOffline, nil)

	raw, err := json.Marshal(e)
	if err != nil {
		t.Fatalf("marshaling event: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshaling event: %v", err)
	}
	if decoded["type"] != string(EventRPCServerOffline) {
		t.Errorf("expected top-level type field, got %s", raw)
	}
	if len(decoded) != 2 {
		t.Errorf("expected only type and timestamp for a payload-less event, got %s", raw)
	}
}

func TestIndependentSubscriberCursors(t *testing.T) {
	b := New(xlog.New(false))
	early := b.Subscribe()
	b.Publish(New(EventError, ErrorPayload{Message: "boom"}))
	late := b.Subscribe()
	b.Publish(New(EventMemoryStats, nil))

	// early sees both events; late only sees the second.
	_, sig, _ := early.Next(context.Background())
	if sig != SignalValue {
		t.Fatalf("expected early subscriber to see first event, got %v", sig)
	}
	e, sig, _ := late.Next(context.Background())
	if sig != SignalValue || e.Type != EventMemoryStats {
		t.Fatalf("expected late subscriber to only see the second event, got %+v %v", e, sig)
	}
}
