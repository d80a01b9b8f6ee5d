package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/sweeney/greenhouse-controller/internal/actuator"
	"github.com/sweeney/greenhouse-controller/internal/clock"
	"github.com/sweeney/greenhouse-controller/internal/control"
	"github.com/sweeney/greenhouse-controller/internal/history"
	"github.com/sweeney/greenhouse-controller/internal/logger"
	"github.com/sweeney/greenhouse-controller/internal/logic"
	"github.com/sweeney/greenhouse-controller/internal/metrics"
	"github.com/sweeney/greenhouse-controller/internal/mqtt"
	"github.com/sweeney/greenhouse-controller/internal/sensor"
	"github.com/sweeney/greenhouse-controller/internal/status"
	"github.com/sweeney/greenhouse-controller/internal/web"
)

func reading(moisture, gas float64) logic.SensorReading {
	return logic.SensorReading{TemperatureC: 22, HumidityPct: 55, GasConcentration: gas, MoisturePct: moisture}
}

// TestIntegrationFullFlow drives the loop from sampler to actuators, MQTT,
// SQLite history, metrics and the HTTP status server.
func TestIntegrationFullFlow(t *testing.T) {
	readings := []logic.SensorReading{
		reading(30, 500), // wet, clean air: fan on, valve idle
		reading(15, 500), // dry: valve opens
		reading(14, 900), // still dry, polluted: fan off
		reading(35, 900), // wet: valve closes by moisture
		reading(10, 500), // dry: opens again
		reading(10, 500),
		reading(10, 500),
		reading(10, 500), // 3s open: closes by timeout
	}

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer store.Close()

	sampler := sensor.NewFakeSampler(readings)
	act := actuator.NewFakeController()
	pub := mqtt.NewFakePublisher()
	pub.Connected = true
	m := metrics.New()
	start := time.Date(2026, 4, 1, 6, 0, 0, 0, time.UTC)
	tracker := status.NewTracker(start, status.Config{Profile: "irrigation", Broker: "tcp://localhost:1883", HistoryEnabled: true})
	clk := clock.NewFake(start, 0)
	clk.Step = time.Second
	var lines bytes.Buffer

	loop := control.New(control.Options{
		Sampler:     sampler,
		Actuators:   act,
		Thresholds:  logic.Thresholds{GasPPM: 800, MoisturePct: 20},
		MaxOpen:     3 * time.Second,
		Clock:       clk,
		Log:         logger.Nop(),
		StatusLines: &lines,
		Publisher:   pub,
		MQTTStatus:  pub,
		Recorder:    store,
		Metrics:     m,
		Tracker:     tracker,
	})

	for i := range readings {
		if err := loop.Cycle(); err != nil {
			t.Fatalf("cycle %d: %v", i+1, err)
		}
	}

	var valve, fan []bool
	for _, a := range act.Applied {
		valve = append(valve, a.ValveOpen)
		fan = append(fan, a.FanOn)
	}
	wantValve := []bool{false, true, true, false, true, true, true, false}
	wantFan := []bool{true, true, false, false, true, true, true, true}
	for i := range wantValve {
		if valve[i] != wantValve[i] || fan[i] != wantFan[i] {
			t.Errorf("cycle %d: valve=%v fan=%v, want valve=%v fan=%v", i+1, valve[i], fan[i], wantValve[i], wantFan[i])
		}
	}

	// MQTT saw every transition in order.
	var kinds []string
	for _, e := range pub.ValveEvents {
		kinds = append(kinds, e.Kind()+"/"+e.Reason())
	}
	if got := strings.Join(kinds, ","); got != "VALVE_OPEN/,VALVE_CLOSE/moisture,VALVE_OPEN/,VALVE_CLOSE/timeout" {
		t.Errorf("valve events: %s", got)
	}
	if len(pub.Telemetry) != len(readings) {
		t.Errorf("telemetry: got %d, want %d", len(pub.Telemetry), len(readings))
	}

	// History holds the same events, newest first, with matching IDs.
	entries, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 4 {
		t.Fatalf("history: got %d entries, want 4", len(entries))
	}
	if entries[0].ID != pub.ValveEvents[3].ID || entries[0].Reason != "timeout" || entries[0].OpenForMs != 3000 {
		t.Errorf("newest history entry: %+v", entries[0])
	}

	// The status stream parses back to the readings that produced it.
	back := sensor.NewLineSampler(&lines)
	for i, want := range readings {
		got, err := back.Sample()
		if err != nil {
			t.Fatalf("parse block %d: %v", i+1, err)
		}
		if got != want {
			t.Errorf("block %d: got %+v, want %+v", i+1, got, want)
		}
	}

	// HTTP reflects the final state.
	srv := web.New(":0", tracker, web.Options{Metrics: m.Registry, History: store})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/index.json")
	if err != nil {
		t.Fatalf("GET /index.json: %v", err)
	}
	var sj status.StatusJSON
	err = json.NewDecoder(resp.Body).Decode(&sj)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	c := sj.Status.Counts
	if c.Cycles != 8 || c.ValveOpens != 2 || c.ClosedByMoisture != 1 || c.ClosedByTimeout != 1 {
		t.Errorf("counts: %+v", c)
	}
	if sj.Status.Valve.State != "IDLE" || !sj.Status.MQTT.Connected {
		t.Errorf("status: %+v", sj.Status)
	}

	resp, err = http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	for _, want := range []string{
		"greenhouse_cycles_total 8",
		"greenhouse_valve_opens_total 2",
		`greenhouse_valve_closes_total{reason="timeout"} 1`,
	} {
		if !strings.Contains(string(body), want) {
			t.Errorf("metrics missing %q", want)
		}
	}

	resp, err = http.Get(ts.URL + "/history.json")
	if err != nil {
		t.Fatalf("GET /history.json: %v", err)
	}
	var hist map[string][]web.HistoryJSON
	err = json.NewDecoder(resp.Body).Decode(&hist)
	resp.Body.Close()
	if err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if len(hist["valve_events"]) != 4 {
		t.Errorf("history.json: got %d events", len(hist["valve_events"]))
	}
}

// TestIntegrationShutdownIsSafe checks that a signal mid-irrigation closes
// the valve and reports it.
func TestIntegrationShutdownIsSafe(t *testing.T) {
	act := actuator.NewFakeController()
	pub := mqtt.NewFakePublisher()
	tracker := status.NewTracker(time.Now(), status.Config{})
	loop := control.New(control.Options{
		Sampler:    sensor.NewFakeSampler([]logic.SensorReading{reading(5, 100)}),
		Actuators:  act,
		Thresholds: logic.Thresholds{GasPPM: 800, MoisturePct: 20},
		MaxOpen:    time.Minute,
		Clock:      clock.NewFake(time.Now(), 0),
		Log:        logger.Nop(),
		Publisher:  pub,
		Tracker:    tracker,
	})

	tick := make(chan time.Time)
	sig := make(chan os.Signal, 1)
	done := make(chan error, 1)
	go func() { done <- loop.Run(tick, sig) }()

	tick <- time.Now()
	sig <- syscall.SIGTERM
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(act.Applied) != 2 || !act.Applied[0].ValveOpen {
		t.Fatalf("expected open then safe, got %+v", act.Applied)
	}
	if act.State != (logic.ActuatorOutputs{}) {
		t.Errorf("final state: %+v", act.State)
	}

	last := pub.SystemPayloads[len(pub.SystemPayloads)-1]
	var sj status.StatusJSON
	if err := json.Unmarshal(last, &sj); err != nil {
		t.Fatalf("shutdown payload: %v", err)
	}
	if sj.Status.Event != "SHUTDOWN" || sj.Status.Outputs.Valve || sj.Status.Valve.State != "IDLE" {
		t.Errorf("shutdown status: %+v", sj.Status)
	}
}
