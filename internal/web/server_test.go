package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/greenhouse-controller/internal/history"
	"github.com/sweeney/greenhouse-controller/internal/logic"
	"github.com/sweeney/greenhouse-controller/internal/metrics"
	"github.com/sweeney/greenhouse-controller/internal/status"
)

type fakeHistory struct {
	entries   []history.Entry
	err       error
	lastLimit int
}

func (f *fakeHistory) Recent(_ context.Context, limit int) ([]history.Entry, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	if limit < len(f.entries) {
		return f.entries[:limit], nil
	}
	return f.entries, nil
}

func testConfig() status.Config {
	return status.Config{
		Profile:        "irrigation",
		CycleMs:        1000,
		MaxOpenMs:      3000,
		HeartbeatMs:    900000,
		Thresholds:     logic.Thresholds{GasPPM: 800, MoisturePct: 20},
		Broker:         "tcp://192.168.1.200:1883",
		HTTPAddr:       ":8080",
		Sampler:        "modbus",
		HistoryEnabled: true,
	}
}

func newTestServer(t *testing.T, opts Options) (*httptest.Server, *status.Tracker) {
	t.Helper()
	tr := status.NewTracker(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), testConfig())
	srv := New(":0", tr, opts)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, tr
}

func get(t *testing.T, url string) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, body
}

func TestJSONEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, Options{})
	tr.Update(status.Cycle{
		At:           time.Date(2026, 1, 1, 0, 5, 0, 0, time.UTC),
		Reading:      logic.SensorReading{TemperatureC: 23.5, HumidityPct: 40, GasConcentration: 620, MoisturePct: 14},
		Outputs:      logic.ActuatorOutputs{FanOn: true, ValveOpen: true},
		Valve:        logic.OpenSince(10),
		ValveOpenFor: 2 * time.Second,
		Counts:       logic.Counters{Cycles: 5, ValveOpens: 1},
	})
	tr.SetMQTTConnected(true)

	resp, body := get(t, ts.URL+"/index.json")
	if resp.StatusCode != 200 {
		t.Errorf("status: got %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type: got %q, want application/json", ct)
	}

	var sj status.StatusJSON
	if err := json.Unmarshal(body, &sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	s := sj.Status
	if !s.Ready || s.Reading == nil || *s.Reading.MoisturePct != 14 {
		t.Errorf("reading: %+v", s.Reading)
	}
	if !s.Outputs.Fan || !s.Outputs.Valve {
		t.Errorf("outputs: %+v", s.Outputs)
	}
	if s.Valve.State != "OPEN" || s.Valve.OpenForMs != 2000 {
		t.Errorf("valve: %+v", s.Valve)
	}
	if !s.MQTT.Connected || s.MQTT.Broker != "tcp://192.168.1.200:1883" {
		t.Errorf("mqtt: %+v", s.MQTT)
	}
	if s.Counts.Cycles != 5 {
		t.Errorf("cycles: got %d", s.Counts.Cycles)
	}
}

func TestJSONBeforeFirstCycle(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	_, body := get(t, ts.URL+"/index.json")
	var sj status.StatusJSON
	if err := json.Unmarshal(body, &sj); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	if sj.Status.Ready {
		t.Error("expected Ready=false before the first cycle")
	}
	if sj.Status.Valve.State != "IDLE" {
		t.Errorf("valve: got %q, want IDLE", sj.Status.Valve.State)
	}
}

func TestHTMLEndpoint(t *testing.T) {
	ts, tr := newTestServer(t, Options{})
	tr.Update(status.Cycle{
		Reading: logic.SensorReading{TemperatureC: 21, HumidityPct: 55, GasConcentration: math.NaN(), MoisturePct: 33},
		Outputs: logic.ActuatorOutputs{FanOn: true},
	})

	for _, path := range []string{"/", "/index.html"} {
		resp, body := get(t, ts.URL+path)
		if resp.StatusCode != 200 {
			t.Errorf("%s status: got %d, want 200", path, resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
			t.Errorf("%s Content-Type: got %q", path, ct)
		}
		html := string(body)
		for _, want := range []string{"Greenhouse Controller", "21.00", "33.00", "n/a", "IDLE", "irrigation"} {
			if !strings.Contains(html, want) {
				t.Errorf("%s: page missing %q", path, want)
			}
		}
	}
}

func TestHTMLBeforeFirstCycle(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	_, body := get(t, ts.URL+"/")
	if !strings.Contains(string(body), "No reading yet") {
		t.Error("expected placeholder before the first cycle")
	}
}

func TestNotFoundForUnknownPath(t *testing.T) {
	ts, _ := newTestServer(t, Options{})

	resp, _ := get(t, ts.URL+"/nonexistent")
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.ObserveTransition(logic.TransitionOpened)
	ts, _ := newTestServer(t, Options{Metrics: m.Registry})

	resp, body := get(t, ts.URL+"/metrics")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	if !strings.Contains(string(body), "greenhouse_valve_opens_total 1") {
		t.Errorf("metrics output missing valve opens:\n%s", body)
	}
}

func TestMetricsDisabled(t *testing.T) {
	ts, _ := newTestServer(t, Options{})
	resp, _ := get(t, ts.URL+"/metrics")
	if resp.StatusCode != 404 {
		t.Errorf("status: got %d, want 404", resp.StatusCode)
	}
}

func TestHistoryEndpoint(t *testing.T) {
	moisture := 12.5
	h := &fakeHistory{entries: []history.Entry{
		{ID: "b", OccurredAt: time.Date(2026, 1, 1, 0, 0, 3, 0, time.UTC), Event: "VALVE_CLOSE", Reason: "timeout", MoisturePct: &moisture, OpenForMs: 3000},
		{ID: "a", OccurredAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), Event: "VALVE_OPEN"},
	}}
	ts, _ := newTestServer(t, Options{History: h})

	resp, body := get(t, ts.URL+"/history.json")
	if resp.StatusCode != 200 {
		t.Fatalf("status: got %d", resp.StatusCode)
	}
	if h.lastLimit != defaultHistoryLimit {
		t.Errorf("limit: got %d, want %d", h.lastLimit, defaultHistoryLimit)
	}

	var got map[string][]HistoryJSON
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	events := got["valve_events"]
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Reason != "timeout" || events[0].OpenForMs != 3000 || *events[0].MoisturePct != 12.5 {
		t.Errorf("first event: %+v", events[0])
	}
	if events[1].Timestamp != "2026-01-01T00:00:00Z" || events[1].MoisturePct != nil {
		t.Errorf("second event: %+v", events[1])
	}
}

func TestHistoryLimit(t *testing.T) {
	h := &fakeHistory{}
	ts, _ := newTestServer(t, Options{History: h})

	get(t, ts.URL+"/history.json?limit=5000")
	if h.lastLimit != maxHistoryLimit {
		t.Errorf("limit should be capped, got %d", h.lastLimit)
	}

	resp, _ := get(t, ts.URL+"/history.json?limit=abc")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad limit: got %d, want 400", resp.StatusCode)
	}
}

func TestHistoryError(t *testing.T) {
	ts, _ := newTestServer(t, Options{History: &fakeHistory{err: errors.New("locked")}})
	resp, _ := get(t, ts.URL+"/history.json")
	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status: got %d, want 500", resp.StatusCode)
	}
}

func TestStateChangesReflectedInResponse(t *testing.T) {
	ts, tr := newTestServer(t, Options{})

	var before status.StatusJSON
	_, body := get(t, ts.URL+"/index.json")
	json.Unmarshal(body, &before)
	if before.Status.Counts.FailedSamples != 0 {
		t.Fatal("expected no skipped cycles initially")
	}

	tr.SetError(errors.New("bus timeout"), logic.Counters{FailedSamples: 1})

	var after status.StatusJSON
	_, body = get(t, ts.URL+"/index.json")
	json.Unmarshal(body, &after)
	if after.Status.LastError != "bus timeout" || after.Status.Counts.FailedSamples != 1 {
		t.Errorf("error not reflected: %+v", after.Status)
	}
}
