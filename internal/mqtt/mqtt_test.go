package mqtt

import (
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

func TestFormatTelemetryPayload(t *testing.T) {
	tel := Telemetry{
		Timestamp:    time.Date(2026, 5, 4, 6, 30, 0, 0, time.UTC),
		Reading:      logic.SensorReading{TemperatureC: 21.5, HumidityPct: 48, GasConcentration: math.NaN(), MoisturePct: 17},
		Outputs:      logic.ActuatorOutputs{FanOn: true, ValveOpen: true},
		Valve:        logic.OpenSince(1000),
		ValveOpenFor: 2 * time.Second,
	}

	data, err := FormatTelemetryPayload(tel)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed TelemetryPayload
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	got := parsed.Telemetry
	if got.Timestamp != "2026-05-04T06:30:00Z" {
		t.Errorf("timestamp: got %s", got.Timestamp)
	}
	if got.Reading.TemperatureC == nil || *got.Reading.TemperatureC != 21.5 {
		t.Errorf("temperature: got %v", got.Reading.TemperatureC)
	}
	if got.Reading.GasConcentration != nil {
		t.Error("NaN gas should encode as null")
	}
	if !got.Outputs.Fan || !got.Outputs.Valve || got.Outputs.Indicator {
		t.Errorf("outputs: %+v", got.Outputs)
	}
	if got.Valve.State != "OPEN" || got.Valve.OpenForMs != 2000 {
		t.Errorf("valve: %+v", got.Valve)
	}
}

func TestFormatValvePayload(t *testing.T) {
	tests := []struct {
		name       string
		event      logic.ValveEvent
		wantEvent  string
		wantReason string
		wantOpen   int64
	}{
		{
			"opened",
			logic.ValveEvent{ID: "a", Transition: logic.TransitionOpened, MoisturePct: 12},
			"VALVE_OPEN", "", 0,
		},
		{
			"closed by moisture",
			logic.ValveEvent{ID: "b", Transition: logic.TransitionClosedByMoisture, MoisturePct: 31, OpenFor: 1500 * time.Millisecond},
			"VALVE_CLOSE", "moisture", 1500,
		},
		{
			"closed by timeout",
			logic.ValveEvent{ID: "c", Transition: logic.TransitionClosedByTimeout, MoisturePct: 10, OpenFor: 3 * time.Second},
			"VALVE_CLOSE", "timeout", 3000,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.event.Timestamp = time.Date(2026, 5, 4, 7, 0, 0, 0, time.UTC)
			data, err := FormatValvePayload(tt.event)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			var parsed ValvePayload
			if err := json.Unmarshal(data, &parsed); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			v := parsed.Valve
			if v.ID != tt.event.ID {
				t.Errorf("id: got %q", v.ID)
			}
			if v.Event != tt.wantEvent || v.Reason != tt.wantReason {
				t.Errorf("event/reason: got %s/%s", v.Event, v.Reason)
			}
			if v.OpenForMs != tt.wantOpen {
				t.Errorf("open_for_ms: got %d, want %d", v.OpenForMs, tt.wantOpen)
			}
			if v.MoisturePct == nil || *v.MoisturePct != tt.event.MoisturePct {
				t.Errorf("moisture: got %v", v.MoisturePct)
			}
			if v.Timestamp != "2026-05-04T07:00:00Z" {
				t.Errorf("timestamp: got %s", v.Timestamp)
			}
		})
	}
}

func TestFormatSystemPayload(t *testing.T) {
	data, err := FormatSystemPayload(SystemEvent{
		Timestamp: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC),
		Event:     "SHUTDOWN",
		Reason:    "SIGTERM",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var parsed SystemPayload
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Event != "SHUTDOWN" || parsed.System.Reason != "SIGTERM" {
		t.Errorf("unexpected system payload: %+v", parsed.System)
	}
	if parsed.System.Timestamp != "2026-05-04T08:00:00Z" {
		t.Errorf("timestamp: got %s", parsed.System.Timestamp)
	}
}

func TestFormatSystemPayloadRaw(t *testing.T) {
	raw := []byte(`{"status":{"event":"STARTUP"}}`)
	data, err := FormatSystemPayload(SystemEvent{Event: "STARTUP", RawPayload: raw})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(data) != string(raw) {
		t.Errorf("raw payload should pass through, got %s", data)
	}
}

func TestWillPayload(t *testing.T) {
	var parsed SystemPayload
	if err := json.Unmarshal(willPayload(), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.System.Event != "OFFLINE" || parsed.System.Reason != "LWT" {
		t.Errorf("unexpected will: %+v", parsed.System)
	}
	if parsed.System.Timestamp != "" {
		t.Error("will has no timestamp")
	}
}

func TestFakePublisher(t *testing.T) {
	f := NewFakePublisher()
	var _ Publisher = f
	var _ ConnectionStatus = f

	if err := f.PublishTelemetry(Telemetry{Timestamp: time.Now()}); err != nil {
		t.Fatalf("PublishTelemetry: %v", err)
	}
	if err := f.PublishValve(logic.ValveEvent{Transition: logic.TransitionOpened}); err != nil {
		t.Fatalf("PublishValve: %v", err)
	}
	if err := f.PublishSystem(SystemEvent{Event: "STARTUP"}); err != nil {
		t.Fatalf("PublishSystem: %v", err)
	}

	if len(f.Telemetry) != 1 || len(f.ValveEvents) != 1 || len(f.ValvePayloads) != 1 {
		t.Errorf("unexpected recordings: %d telemetry, %d valve", len(f.Telemetry), len(f.ValveEvents))
	}
	if names := f.SystemEventNames(); len(names) != 1 || names[0] != "STARTUP" {
		t.Errorf("system events: %v", names)
	}

	f.PublishError = errors.New("broker gone")
	if err := f.PublishValve(logic.ValveEvent{}); err == nil {
		t.Error("expected configured error")
	}
	if len(f.ValveEvents) != 1 {
		t.Error("failed publish should not be recorded")
	}

	f.Close()
	if !f.Closed {
		t.Error("expected Closed")
	}
	f.Reset()
	if f.Closed || f.Telemetry != nil || f.SystemEvents != nil {
		t.Error("Reset should clear state")
	}
}
