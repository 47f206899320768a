// Package bus implements the process-wide broadcast of cluster domain
// events: a bounded ring buffer with per-subscriber cursors, so a slow
// subscriber loses the oldest entries instead of blocking producers.
package bus

import (
	"encoding/json"
	"time"
)

// EventType is the tagged discriminator serialized as `type` in the
// external JSON shape (spec §4.1, §6 — snake_case).
type EventType string

const (
	EventDeviceDiscovered       EventType = "device_discovered"
	EventDevicePendingApproval  EventType = "device_pending_approval"
	EventDeviceApproved         EventType = "device_approved"
	EventDeviceDenied           EventType = "device_denied"
	EventDeviceOffline          EventType = "device_offline"
	EventMemoryAllocated        EventType = "memory_allocated"
	EventMemoryStats            EventType = "memory_stats"
	EventOllamaStatus           EventType = "ollama_status"
	EventRPCServerReady         EventType = "rpc_server_ready"
	EventRPCServerOffline       EventType = "rpc_server_offline"
	EventRPCDeviceReady         EventType = "rpc_device_ready"
	EventRPCDeviceOffline       EventType = "rpc_device_offline"
	EventInferenceStarted       EventType = "inference_started"
	EventInferenceStopped       EventType = "inference_stopped"
	EventLayerAssignment        EventType = "layer_assignment"
	EventError                  EventType = "error"
)

// Event is a single broadcast entry. Payload carries the variant-specific
// fields (see the per-variant payload builders below); MarshalJSON
// flattens them alongside "type" and "timestamp" so clients see a
// single JSON object per event, matching the original's
// #[serde(tag = "type")] enum shape (original_source/backend/src/ws/mod.rs).
type Event struct {
	Type      EventType   `json:"type"`
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

func New(t EventType, payload interface{}) Event {
	return Event{Type: t, Payload: payload, Timestamp: time.Now()}
}

// MarshalJSON flattens Payload's fields into the top-level object
// instead of nesting them under a "payload" key, so {"type":"...",
// "device_id":"...", ...} is what reaches WebSocket clients.
func (e Event) MarshalJSON() ([]byte, error) {
	fields := map[string]json.RawMessage{}

	if e.Payload != nil {
		payloadJSON, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, err
		}
		if string(payloadJSON) != "null" {
			if err := json.Unmarshal(payloadJSON, &fields); err != nil {
				return nil, err
			}
		}
	}

	typeJSON, err := json.Marshal(e.Type)
	if err != nil {
		return nil, err
	}
	fields["type"] = typeJSON

	timestampJSON, err := json.Marshal(e.Timestamp)
	if err != nil {
		return nil, err
	}
	fields["timestamp"] = timestampJSON

	return json.Marshal(fields)
}

// Payload shapes, one per event variant named in spec §4.1.

type DeviceDiscoveredPayload struct {
	IP       string `json:"ip"`
	Name     string `json:"name"`
	Hostname string `json:"hostname"`
	Method   string `json:"method"`
}

type DevicePendingApprovalPayload struct {
	DeviceID        string `json:"device_id"`
	Name            string `json:"name"`
	Address         string `json:"address"`
	DiscoveryMethod string `json:"discovery_method"`
}

type DeviceApprovedPayload struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Address  string `json:"address"`
	RoleID   string `json:"role_id"`
}

type DeviceDeniedPayload struct {
	DeviceID string `json:"device_id"`
}

type DeviceOfflinePayload struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}

type MemoryAllocatedPayload struct {
	DeviceID string `json:"device_id"`
	MemoryMB int64  `json:"memory_mb"`
}

type MemoryStatsPayload struct {
	Snapshots interface{} `json:"snapshots"`
}

type OllamaStatusPayload struct {
	Running bool   `json:"running"`
	Host    string `json:"host"`
}

type RPCServerReadyPayload struct {
	Port int `json:"port"`
}

type RPCDeviceStatusPayload struct {
	DeviceID string `json:"device_id"`
	Address  string `json:"address"`
}

type InferenceStartedPayload struct {
	SessionID string   `json:"session_id"`
	Model     string   `json:"model"`
	Peers     []string `json:"peers"`
}

type InferenceStoppedPayload struct {
	SessionID string `json:"session_id"`
}

// LayerAssignmentPayload exists for forward compatibility only — the
// core never emits this event today (spec §9 open question).
type LayerAssignmentPayload struct {
	SessionID string `json:"session_id"`
	Layer     int    `json:"layer"`
	Provider  string `json:"provider"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
