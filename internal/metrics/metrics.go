// Package metrics exposes controller state as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

const namespace = "greenhouse"

// Metrics holds the controller's collectors on a private registry so tests
// and multiple instances never collide on the default one.
type Metrics struct {
	Registry *prometheus.Registry

	reading        *prometheus.GaugeVec
	output         *prometheus.GaugeVec
	cycles         prometheus.Counter
	sampleFailures prometheus.Counter
	valveOpens     prometheus.Counter
	valveCloses    *prometheus.CounterVec
	valveOpenFor   prometheus.Gauge
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		reading: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reading",
			Help:      "Latest sensor reading by channel. NaN when the read failed.",
		}, []string{"channel"}),
		output: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "output",
			Help:      "Applied actuator state (1 on/open, 0 off/closed).",
		}, []string{"actuator"}),
		cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Control cycles run, including those on a failed sample.",
		}),
		sampleFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sample_failures_total",
			Help:      "Control cycles whose sample failed and ran on an empty reading.",
		}),
		valveOpens: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "valve_opens_total",
			Help:      "Times the valve was opened.",
		}),
		valveCloses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "valve_closes_total",
			Help:      "Times the valve was closed, by reason.",
		}, []string{"reason"}),
		valveOpenFor: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "valve_open_seconds",
			Help:      "How long the valve has been open in the current episode.",
		}),
	}
	m.Registry.MustRegister(
		m.reading, m.output, m.cycles, m.sampleFailures,
		m.valveOpens, m.valveCloses, m.valveOpenFor,
	)
	// Pre-create label values so the series exist before the first event.
	m.valveCloses.WithLabelValues(logic.CloseReasonMoisture)
	m.valveCloses.WithLabelValues(logic.CloseReasonTimeout)
	return m
}

// ObserveCycle records one completed cycle.
func (m *Metrics) ObserveCycle(r logic.SensorReading, out logic.ActuatorOutputs, openSeconds float64) {
	m.cycles.Inc()
	m.reading.WithLabelValues("temperature_c").Set(r.TemperatureC)
	m.reading.WithLabelValues("humidity_pct").Set(r.HumidityPct)
	m.reading.WithLabelValues("gas").Set(r.GasConcentration)
	m.reading.WithLabelValues("moisture_pct").Set(r.MoisturePct)
	m.ObserveOutputs(out)
	m.valveOpenFor.Set(openSeconds)
}

// ObserveOutputs records the applied actuator state.
func (m *Metrics) ObserveOutputs(out logic.ActuatorOutputs) {
	m.output.WithLabelValues("fan").Set(b2f(out.FanOn))
	m.output.WithLabelValues("indicator").Set(b2f(out.IndicatorOn))
	m.output.WithLabelValues("valve").Set(b2f(out.ValveOpen))
	if !out.ValveOpen {
		m.valveOpenFor.Set(0)
	}
}

// ObserveSampleFailure records a failed sample.
func (m *Metrics) ObserveSampleFailure() {
	m.sampleFailures.Inc()
}

// ObserveTransition records a valve transition.
func (m *Metrics) ObserveTransition(tr logic.Transition) {
	switch tr {
	case logic.TransitionOpened:
		m.valveOpens.Inc()
	case logic.TransitionClosedByMoisture:
		m.valveCloses.WithLabelValues(logic.CloseReasonMoisture).Inc()
	case logic.TransitionClosedByTimeout:
		m.valveCloses.WithLabelValues(logic.CloseReasonTimeout).Inc()
	}
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
