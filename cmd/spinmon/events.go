package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// External Events
// ============================================================================
// Events that may arrive from outside the process (IPC). The daemon stamps
// them with a TimedEvent on receipt; the payloads carry no timestamps.
// ============================================================================

// ArmRequested opens an attention window as if the activation key was pressed.
type ArmRequested struct {
	Origin string `json:"origin,omitempty"` // e.g. "ipc", "spinctl"
}

func (ArmRequested) eventMarker() {}

// ResetRequested returns to Idle, dropping any gesture in progress.
type ResetRequested struct {
	Origin string `json:"origin,omitempty"`
}

func (ResetRequested) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================

// EventEnvelope wraps events with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "arm":
		var a ArmRequested
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &a); err != nil {
				return nil, fmt.Errorf("unmarshal ArmRequested: %w", err)
			}
		}
		return a, nil

	case "reset":
		var a ResetRequested
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &a); err != nil {
				return nil, fmt.Errorf("unmarshal ResetRequested: %w", err)
			}
		}
		return a, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case ArmRequested:
		env.Type = "arm"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal ArmRequested: %w", err)
		}
		env.Data = data

	case ResetRequested:
		env.Type = "reset"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal ResetRequested: %w", err)
		}
		env.Data = data

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
