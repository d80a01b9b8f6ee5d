// Package status provides a thread-safe status tracker for the controller.
// The control loop writes it once per cycle; HTTP handlers and MQTT system
// events read snapshots.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// Config contains controller configuration for display.
type Config struct {
	Profile        string
	CycleMs        int64
	MaxOpenMs      int64
	HeartbeatMs    int64
	Thresholds     logic.Thresholds
	Broker         string
	HTTPAddr       string
	Sampler        string
	HistoryEnabled bool
}

// Snapshot is a point-in-time view of controller state.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Reading       logic.SensorReading
	HaveReading   bool
	Outputs       logic.ActuatorOutputs
	Valve         logic.ValveState
	ValveOpenFor  time.Duration
	Counts        logic.Counters
	LastCycle     time.Time
	LastError     string
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the controller started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable controller state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Cycle is what one completed control cycle reports.
type Cycle struct {
	At           time.Time
	Reading      logic.SensorReading
	Outputs      logic.ActuatorOutputs
	Valve        logic.ValveState
	ValveOpenFor time.Duration
	Counts       logic.Counters
}

// Update records a completed cycle and clears the last error.
func (t *Tracker) Update(c Cycle) {
	t.mu.Lock()
	t.snap.Reading = c.Reading
	t.snap.HaveReading = true
	t.snap.Outputs = c.Outputs
	t.snap.Valve = c.Valve
	t.snap.ValveOpenFor = c.ValveOpenFor
	t.snap.Counts = c.Counts
	t.snap.LastCycle = c.At
	t.snap.LastError = ""
	t.mu.Unlock()
}

// SetError records a failed sample. Call it after Update, which clears it.
func (t *Tracker) SetError(err error, counts logic.Counters) {
	t.mu.Lock()
	t.snap.LastError = err.Error()
	t.snap.Counts = counts
	t.mu.Unlock()
}

// SetOutputs records outputs applied outside a cycle, e.g. at shutdown.
func (t *Tracker) SetOutputs(out logic.ActuatorOutputs, valve logic.ValveState) {
	t.mu.Lock()
	t.snap.Outputs = out
	t.snap.Valve = valve
	t.snap.ValveOpenFor = 0
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the controller state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
