package status

import (
	"encoding/json"
	"math"
	"time"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	Ready         bool         `json:"ready"`
	Reading       *ReadingJSON `json:"reading,omitempty"`
	Outputs       OutputsJSON  `json:"outputs"`
	Valve         ValveJSON    `json:"valve"`
	LastError     string       `json:"last_error,omitempty"`
	LastCycle     string       `json:"last_cycle,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"counts"`
	Config        ConfigJSON   `json:"config"`
}

// ReadingJSON is a sensor reading. A NaN value (failed read) is null.
type ReadingJSON struct {
	TemperatureC     *float64 `json:"temperature_c"`
	HumidityPct      *float64 `json:"humidity_pct"`
	GasConcentration *float64 `json:"gas"`
	MoisturePct      *float64 `json:"moisture_pct"`
}

// NewReadingJSON converts r, mapping NaN and infinities to null.
func NewReadingJSON(r logic.SensorReading) ReadingJSON {
	return ReadingJSON{
		TemperatureC:     finite(r.TemperatureC),
		HumidityPct:      finite(r.HumidityPct),
		GasConcentration: finite(r.GasConcentration),
		MoisturePct:      finite(r.MoisturePct),
	}
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// OutputsJSON is the applied actuator state.
type OutputsJSON struct {
	Fan       bool `json:"fan"`
	Indicator bool `json:"indicator"`
	Valve     bool `json:"valve"`
}

// NewOutputsJSON converts out.
func NewOutputsJSON(out logic.ActuatorOutputs) OutputsJSON {
	return OutputsJSON{Fan: out.FanOn, Indicator: out.IndicatorOn, Valve: out.ValveOpen}
}

// ValveJSON is the valve timer state.
type ValveJSON struct {
	State     string `json:"state"`
	OpenForMs int64  `json:"open_for_ms"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of cycle and valve counters.
type CountsJSON struct {
	Cycles           int `json:"cycles"`
	FailedSamples    int `json:"failed_samples"`
	ValveOpens       int `json:"valve_opens"`
	ClosedByMoisture int `json:"closed_by_moisture"`
	ClosedByTimeout  int `json:"closed_by_timeout"`
}

// ThresholdsJSON is the JSON representation of the decision thresholds.
type ThresholdsJSON struct {
	GasPPM           float64 `json:"gas_ppm"`
	MoisturePct      float64 `json:"moisture_pct"`
	TemperatureC     float64 `json:"temperature_c"`
	HumidityPct      float64 `json:"humidity_pct"`
	IndicatorEnabled bool    `json:"indicator_enabled"`
}

// ConfigJSON is the JSON representation of controller config.
type ConfigJSON struct {
	Profile        string         `json:"profile"`
	CycleMs        int64          `json:"cycle_ms"`
	MaxOpenMs      int64          `json:"valve_max_open_ms"`
	HeartbeatMs    int64          `json:"heartbeat_ms"`
	Thresholds     ThresholdsJSON `json:"thresholds"`
	Broker         string         `json:"broker"`
	HTTPAddr       string         `json:"http_addr"`
	Sampler        string         `json:"sampler"`
	HistoryEnabled bool           `json:"history_enabled"`
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Ready:   snap.HaveReading,
		Outputs: NewOutputsJSON(snap.Outputs),
		Valve: ValveJSON{
			State:     snap.Valve.String(),
			OpenForMs: snap.ValveOpenFor.Milliseconds(),
		},
		LastError:     snap.LastError,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Cycles:           snap.Counts.Cycles,
			FailedSamples:    snap.Counts.FailedSamples,
			ValveOpens:       snap.Counts.ValveOpens,
			ClosedByMoisture: snap.Counts.ClosedByMoisture,
			ClosedByTimeout:  snap.Counts.ClosedByTimeout,
		},
		Config: ConfigJSON{
			Profile:     snap.Config.Profile,
			CycleMs:     snap.Config.CycleMs,
			MaxOpenMs:   snap.Config.MaxOpenMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Thresholds: ThresholdsJSON{
				GasPPM:           snap.Config.Thresholds.GasPPM,
				MoisturePct:      snap.Config.Thresholds.MoisturePct,
				TemperatureC:     snap.Config.Thresholds.TemperatureC,
				HumidityPct:      snap.Config.Thresholds.HumidityPct,
				IndicatorEnabled: snap.Config.Thresholds.IndicatorEnabled,
			},
			Broker:         snap.Config.Broker,
			HTTPAddr:       snap.Config.HTTPAddr,
			Sampler:        snap.Config.Sampler,
			HistoryEnabled: snap.Config.HistoryEnabled,
		},
	}
	if snap.HaveReading {
		r := NewReadingJSON(snap.Reading)
		inner.Reading = &r
	}
	if !snap.LastCycle.IsZero() {
		inner.LastCycle = snap.LastCycle.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
