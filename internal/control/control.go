// Package control runs the sample → decide → actuate cycle.
package control

import (
	"context"
	"io"
	"os"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/sweeney/greenhouse-controller/internal/actuator"
	"github.com/sweeney/greenhouse-controller/internal/clock"
	"github.com/sweeney/greenhouse-controller/internal/history"
	"github.com/sweeney/greenhouse-controller/internal/logger"
	"github.com/sweeney/greenhouse-controller/internal/logic"
	"github.com/sweeney/greenhouse-controller/internal/metrics"
	"github.com/sweeney/greenhouse-controller/internal/mqtt"
	"github.com/sweeney/greenhouse-controller/internal/sensor"
	"github.com/sweeney/greenhouse-controller/internal/status"
	"github.com/sweeney/greenhouse-controller/internal/statusline"
)

// System event names.
const (
	EventStartup   = "STARTUP"
	EventHeartbeat = "HEARTBEAT"
	EventShutdown  = "SHUTDOWN"
)

// recordTimeout bounds a single history write.
const recordTimeout = 2 * time.Second

// Options wires a Loop. Sampler, Actuators, Clock and Log are required; the
// rest may be nil to disable that output.
type Options struct {
	Sampler    sensor.Sampler
	Actuators  actuator.Controller
	Thresholds logic.Thresholds
	MaxOpen    time.Duration
	Clock      clock.Clock
	Log        *logger.Logger

	// StatusLines receives the "Label: value" block each cycle.
	StatusLines io.Writer
	Publisher   mqtt.Publisher
	MQTTStatus  mqtt.ConnectionStatus
	Recorder    history.Recorder
	Metrics     *metrics.Metrics
	Tracker     *status.Tracker

	// Heartbeat is the interval between HEARTBEAT events; 0 disables them.
	Heartbeat time.Duration

	// NewID generates valve event IDs. Defaults to uuid.NewString.
	NewID func() string
}

// Loop owns the valve timer and is the only thing that advances it.
// It is not safe for concurrent use; Run drives it from a single goroutine.
type Loop struct {
	Options

	valve         *logic.ValveTimer
	counts        logic.Counters
	start         time.Time
	lastHeartbeat time.Time
}

// New creates a Loop with the valve Idle.
func New(o Options) *Loop {
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	now := o.Clock.Now()
	return &Loop{
		Options:       o,
		valve:         logic.NewValveTimer(o.MaxOpen),
		start:         now,
		lastHeartbeat: now,
	}
}

// Counts returns the counters accumulated so far.
func (l *Loop) Counts() logic.Counters {
	return l.counts
}

// Valve returns the current valve state.
func (l *Loop) Valve() logic.ValveState {
	return l.valve.State()
}

// Cycle runs one control cycle. A sampler error is returned to the caller,
// but the cycle still runs on an all-NaN reading: every threshold compares
// false, so the fan stays off and an open valve closes.
func (l *Loop) Cycle() error {
	reading, sampleErr := l.Sampler.Sample()
	if sampleErr != nil {
		reading = logic.EmptyReading()
		l.counts.FailedSamples++
		if l.Metrics != nil {
			l.Metrics.ObserveSampleFailure()
		}
	}

	at := l.Clock.Now()
	now := l.Clock.Millis()

	intent := logic.Evaluate(reading, l.Thresholds)
	openFor := l.valve.OpenFor(now)
	tr := l.valve.Advance(intent.ValveOpenRequested, now)
	out := logic.Resolve(intent, l.valve.Open())
	l.Actuators.Apply(out)
	l.counts.Record(tr)

	if l.StatusLines != nil {
		if err := statusline.Write(l.StatusLines, reading); err != nil {
			l.Log.Warnw("status line write failed", "error", err)
		}
	}

	if tr != logic.TransitionNone {
		l.valveEvent(at, tr, reading, openFor)
	}

	openFor = l.valve.OpenFor(now)
	if l.Metrics != nil {
		l.Metrics.ObserveCycle(reading, out, openFor.Seconds())
	}
	if l.Tracker != nil {
		l.Tracker.Update(status.Cycle{
			At:           at,
			Reading:      reading,
			Outputs:      out,
			Valve:        l.valve.State(),
			ValveOpenFor: openFor,
			Counts:       l.counts,
		})
		if sampleErr != nil {
			l.Tracker.SetError(sampleErr, l.counts)
		}
		l.refreshMQTTStatus()
	}
	if l.Publisher != nil {
		err := l.Publisher.PublishTelemetry(mqtt.Telemetry{
			Timestamp:    at,
			Reading:      reading,
			Outputs:      out,
			Valve:        l.valve.State(),
			ValveOpenFor: openFor,
		})
		if err != nil {
			l.Log.Warnw("telemetry publish failed", "error", err)
		}
	}

	l.Log.Debugw("cycle",
		"temperature_c", reading.TemperatureC,
		"humidity_pct", reading.HumidityPct,
		"gas", reading.GasConcentration,
		"moisture_pct", reading.MoisturePct,
		"fan", out.FanOn,
		"indicator", out.IndicatorOn,
		"valve", out.ValveOpen,
	)
	return sampleErr
}

// valveEvent logs, publishes and records a valve transition. openFor is the
// open duration measured before the transition.
func (l *Loop) valveEvent(at time.Time, tr logic.Transition, r logic.SensorReading, openFor time.Duration) {
	e := logic.ValveEvent{
		ID:          l.NewID(),
		Timestamp:   at,
		Transition:  tr,
		MoisturePct: r.MoisturePct,
	}
	if tr != logic.TransitionOpened {
		e.OpenFor = openFor
	}

	l.Log.Infow("valve "+e.Kind(), "reason", e.Reason(), "moisture_pct", r.MoisturePct, "open_for", e.OpenFor)

	if l.Metrics != nil {
		l.Metrics.ObserveTransition(tr)
	}
	if l.Publisher != nil {
		if err := l.Publisher.PublishValve(e); err != nil {
			l.Log.Warnw("valve event publish failed", "id", e.ID, "error", err)
		}
	}
	if l.Recorder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
		defer cancel()
		if err := l.Recorder.Record(ctx, e); err != nil {
			l.Log.Warnw("valve event not recorded", "id", e.ID, "error", err)
		}
	}
}

// CheckHeartbeat returns heartbeat data when the interval has elapsed since the
// last heartbeat, and nil otherwise.
func (l *Loop) CheckHeartbeat() *logic.HeartbeatData {
	if l.Heartbeat <= 0 {
		return nil
	}
	now := l.Clock.Now()
	if now.Sub(l.lastHeartbeat) < l.Heartbeat {
		return nil
	}
	l.lastHeartbeat = now
	return &logic.HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(l.start),
		Counts:    l.counts,
	}
}

// Safe drives every output off and returns the valve to Idle.
func (l *Loop) Safe() {
	l.valve = logic.NewValveTimer(l.MaxOpen)
	off := logic.ActuatorOutputs{}
	l.Actuators.Apply(off)
	if l.Metrics != nil {
		l.Metrics.ObserveOutputs(off)
	}
	if l.Tracker != nil {
		l.Tracker.SetOutputs(off, logic.Idle())
	}
}

// Run publishes STARTUP, runs one cycle per tick and publishes a HEARTBEAT
// on the configured interval. On a signal it drives the outputs safe,
// publishes SHUTDOWN and returns nil. A cycle always completes before the
// next tick or signal is read.
func (l *Loop) Run(tick <-chan time.Time, sig <-chan os.Signal) error {
	l.publishSystem(EventStartup, "", true)
	l.Log.Infow("control loop started",
		"gas_ppm", l.Thresholds.GasPPM,
		"moisture_pct", l.Thresholds.MoisturePct,
		"indicator", l.Thresholds.IndicatorEnabled,
		"valve_max_open", l.MaxOpen,
		"heartbeat", l.Heartbeat,
	)

	for {
		select {
		case s := <-sig:
			name := signalName(s)
			l.Log.Infow("shutting down", "signal", name)
			l.Safe()
			l.publishSystem(EventShutdown, name, true)
			return nil

		case <-tick:
			if err := l.Cycle(); err != nil {
				l.Log.Warnw("sample failed, outputs driven from an empty reading", "error", err, "failed_samples", l.counts.FailedSamples)
			}

			if hb := l.CheckHeartbeat(); hb != nil {
				l.Log.Infow("heartbeat",
					"uptime", hb.Uptime,
					"cycles", hb.Counts.Cycles,
					"failed_samples", hb.Counts.FailedSamples,
					"valve_opens", hb.Counts.ValveOpens,
					"closed_moisture", hb.Counts.ClosedByMoisture,
					"closed_timeout", hb.Counts.ClosedByTimeout,
				)
				l.publishSystem(EventHeartbeat, "", false)
			}
		}
	}
}

func (l *Loop) publishSystem(event, reason string, retained bool) {
	if l.Publisher == nil {
		return
	}
	e := mqtt.SystemEvent{
		Timestamp: l.Clock.Now(),
		Event:     event,
		Reason:    reason,
		Retained:  retained,
	}
	if l.Tracker != nil {
		l.refreshMQTTStatus()
		e.RawPayload = status.FormatStatusEvent(l.Tracker.Snapshot(), event, reason)
	}
	if err := l.Publisher.PublishSystem(e); err != nil {
		l.Log.Warnw("system event publish failed", "event", event, "error", err)
		return
	}
	l.Log.Debugw("published system event", "event", event)
}

func (l *Loop) refreshMQTTStatus() {
	if l.Tracker != nil && l.MQTTStatus != nil {
		l.Tracker.SetMQTTConnected(l.MQTTStatus.IsConnected())
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
