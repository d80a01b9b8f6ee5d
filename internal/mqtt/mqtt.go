// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/greenhouse-controller/internal/logic"
	"github.com/sweeney/greenhouse-controller/internal/status"
)

// Topics.
const (
	TopicTelemetry = "greenhouse/controller/telemetry"
	TopicValve     = "greenhouse/controller/valve"
	TopicSystem    = "greenhouse/controller/system"
)

// Publisher publishes controller messages to MQTT.
// Returned errors are logged by the caller; they never stop the control loop.
type Publisher interface {
	// PublishTelemetry sends the result of one cycle.
	PublishTelemetry(t Telemetry) error

	// PublishValve sends a valve transition.
	PublishValve(e logic.ValveEvent) error

	// PublishSystem sends a system lifecycle event.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// Telemetry is the result of one control cycle.
type Telemetry struct {
	Timestamp    time.Time
	Reading      logic.SensorReading
	Outputs      logic.ActuatorOutputs
	Valve        logic.ValveState
	ValveOpenFor time.Duration
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// TelemetryPayload is the MQTT message payload for telemetry.
type TelemetryPayload struct {
	Telemetry TelemetryInner `json:"telemetry"`
}

// TelemetryInner contains the telemetry details.
type TelemetryInner struct {
	Timestamp string             `json:"timestamp"`
	Reading   status.ReadingJSON `json:"reading"`
	Outputs   status.OutputsJSON `json:"outputs"`
	Valve     status.ValveJSON   `json:"valve"`
}

// FormatTelemetryPayload creates the JSON payload for a telemetry message.
func FormatTelemetryPayload(t Telemetry) ([]byte, error) {
	payload := TelemetryPayload{
		Telemetry: TelemetryInner{
			Timestamp: t.Timestamp.UTC().Format(time.RFC3339),
			Reading:   status.NewReadingJSON(t.Reading),
			Outputs:   status.NewOutputsJSON(t.Outputs),
			Valve: status.ValveJSON{
				State:     t.Valve.String(),
				OpenForMs: t.ValveOpenFor.Milliseconds(),
			},
		},
	}
	return json.Marshal(payload)
}

// ValvePayload is the MQTT message payload for a valve transition.
type ValvePayload struct {
	Valve ValveInner `json:"valve"`
}

// ValveInner contains the valve event details.
type ValveInner struct {
	ID          string   `json:"id"`
	Timestamp   string   `json:"timestamp"`
	Event       string   `json:"event"`
	Reason      string   `json:"reason,omitempty"`
	MoisturePct *float64 `json:"moisture_pct"`
	OpenForMs   int64    `json:"open_for_ms,omitempty"`
}

// FormatValvePayload creates the JSON payload for a valve event.
func FormatValvePayload(e logic.ValveEvent) ([]byte, error) {
	payload := ValvePayload{
		Valve: ValveInner{
			ID:          e.ID,
			Timestamp:   e.Timestamp.UTC().Format(time.RFC3339),
			Event:       e.Kind(),
			Reason:      e.Reason(),
			MoisturePct: status.NewReadingJSON(logic.SensorReading{MoisturePct: e.MoisturePct}).MoisturePct,
			OpenForMs:   e.OpenFor.Milliseconds(),
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	inner := SystemPayloadInner{
		Event:  event.Event,
		Reason: event.Reason,
	}
	if !event.Timestamp.IsZero() {
		inner.Timestamp = event.Timestamp.UTC().Format(time.RFC3339)
	}
	return json.Marshal(SystemPayload{System: inner})
}

// willPayload is published by the broker if the controller drops off the network.
func willPayload() []byte {
	data, _ := FormatSystemPayload(SystemEvent{Event: "OFFLINE", Reason: "LWT"})
	return data
}
