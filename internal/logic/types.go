// Package logic contains the pure decision logic of the greenhouse controller.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injected: wall time as time.Time, controller uptime as Millis.
package logic

import (
	"math"
	"time"
)

// SensorReading is one sample of the four logical sensors.
// Out-of-range or NaN values are carried as-is; nothing here detects sensor faults.
type SensorReading struct {
	TemperatureC     float64
	HumidityPct      float64
	GasConcentration float64 // ppm-equivalent, scale depends on hardware variant
	MoisturePct      float64
}

// EmptyReading returns a reading with every channel NaN, used when no sample
// could be taken. NaN compares false against every threshold.
func EmptyReading() SensorReading {
	nan := math.NaN()
	return SensorReading{TemperatureC: nan, HumidityPct: nan, GasConcentration: nan, MoisturePct: nan}
}

// ActuatorIntent is what the thresholds ask for on this cycle.
type ActuatorIntent struct {
	FanOn              bool
	IndicatorOn        bool
	ValveOpenRequested bool
}

// ActuatorOutputs is the resolved physical command for a cycle.
type ActuatorOutputs struct {
	FanOn       bool
	IndicatorOn bool
	ValveOpen   bool
}

// Thresholds are the configured decision boundaries.
type Thresholds struct {
	GasPPM       float64
	MoisturePct  float64
	TemperatureC float64
	HumidityPct  float64

	// IndicatorEnabled is false on hardware without an indicator output.
	IndicatorEnabled bool
}

// Millis is a monotonic millisecond counter that wraps at 2^32.
type Millis uint32

// Elapsed returns the time from since to now. The subtraction is done on the
// unsigned counter so it stays correct when now has wrapped past zero.
func Elapsed(now, since Millis) time.Duration {
	return time.Duration(uint32(now-since)) * time.Millisecond
}

// Transition describes what a valve step did.
type Transition string

const (
	TransitionNone             Transition = ""
	TransitionOpened           Transition = "OPENED"
	TransitionClosedByMoisture Transition = "CLOSED_MOISTURE"
	TransitionClosedByTimeout  Transition = "CLOSED_TIMEOUT"
)

// Counters tracks cycle and valve activity since startup.
type Counters struct {
	Cycles           int
	FailedSamples    int
	ValveOpens       int
	ClosedByMoisture int
	ClosedByTimeout  int
}

// Record counts one completed cycle and its valve transition.
func (c *Counters) Record(tr Transition) {
	c.Cycles++
	switch tr {
	case TransitionOpened:
		c.ValveOpens++
	case TransitionClosedByMoisture:
		c.ClosedByMoisture++
	case TransitionClosedByTimeout:
		c.ClosedByTimeout++
	}
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    Counters
}

// Valve event kinds and close reasons as published.
const (
	ValveEventOpen  = "VALVE_OPEN"
	ValveEventClose = "VALVE_CLOSE"

	CloseReasonMoisture = "moisture"
	CloseReasonTimeout  = "timeout"
)

// ValveEvent records one valve transition.
type ValveEvent struct {
	ID          string
	Timestamp   time.Time
	Transition  Transition
	MoisturePct float64
	// OpenFor is how long the valve had been open when it closed.
	OpenFor time.Duration
}

// Kind returns ValveEventOpen or ValveEventClose.
func (e ValveEvent) Kind() string {
	if e.Transition == TransitionOpened {
		return ValveEventOpen
	}
	return ValveEventClose
}

// Reason returns why the valve closed, or "" for an opening.
func (e ValveEvent) Reason() string {
	switch e.Transition {
	case TransitionClosedByMoisture:
		return CloseReasonMoisture
	case TransitionClosedByTimeout:
		return CloseReasonTimeout
	}
	return ""
}
