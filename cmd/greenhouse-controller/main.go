// Command greenhouse-controller samples greenhouse sensors, drives the fan,
// indicator and irrigation valve, and reports state over MQTT and HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sweeney/greenhouse-controller/internal/actuator"
	"github.com/sweeney/greenhouse-controller/internal/clock"
	"github.com/sweeney/greenhouse-controller/internal/config"
	"github.com/sweeney/greenhouse-controller/internal/control"
	"github.com/sweeney/greenhouse-controller/internal/history"
	"github.com/sweeney/greenhouse-controller/internal/logger"
	"github.com/sweeney/greenhouse-controller/internal/logic"
	"github.com/sweeney/greenhouse-controller/internal/metrics"
	"github.com/sweeney/greenhouse-controller/internal/mqtt"
	"github.com/sweeney/greenhouse-controller/internal/sensor"
	"github.com/sweeney/greenhouse-controller/internal/status"
	"github.com/sweeney/greenhouse-controller/internal/statusline"
	"github.com/sweeney/greenhouse-controller/internal/web"
)

func main() {
	configPath := flag.String("config", "", "Path to config file (default: config.yml in . or ./configs)")
	printState := flag.Bool("print-state", false, "Sample once, print readings and the resulting outputs, and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("fatal: %v", err)
	}

	lg := logger.New(cfg.Log.Level)
	defer lg.Sync()

	if err := run(cfg, *printState, lg); err != nil {
		lg.Fatalw("fatal", "error", err)
	}
}

func run(cfg *config.Config, printState bool, lg *logger.Logger) error {
	sampler, err := openSampler(cfg, lg)
	if err != nil {
		return fmt.Errorf("init sampler: %w", err)
	}
	defer sampler.Close()

	if printState {
		return printOnce(os.Stdout, sampler, cfg.LogicThresholds())
	}

	actuators, err := actuator.NewRealController(cfg.Pins(), lg)
	if err != nil {
		return fmt.Errorf("init actuators: %w", err)
	}
	defer actuators.Close()

	lines, closeLines, err := openStatusOutput(cfg.Status.Output)
	if err != nil {
		return fmt.Errorf("open status output: %w", err)
	}
	defer closeLines()

	tracker := status.NewTracker(time.Now(), statusConfig(cfg))
	m := metrics.New()

	opts := control.Options{
		Sampler:     sampler,
		Actuators:   actuators,
		Thresholds:  cfg.LogicThresholds(),
		MaxOpen:     cfg.Valve.MaxOpen,
		Clock:       clock.NewMonotonic(),
		Log:         lg,
		StatusLines: lines,
		Metrics:     m,
		Tracker:     tracker,
		Heartbeat:   cfg.MQTT.Heartbeat,
	}

	if cfg.MQTT.Broker != "" {
		publisher := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   cfg.MQTT.Broker,
			ClientID: cfg.MQTT.ClientID,
			Buffer:   cfg.MQTT.Buffer,
		}, lg)
		defer publisher.Close()
		opts.Publisher = publisher
		opts.MQTTStatus = publisher
	} else {
		lg.Infow("mqtt disabled")
	}

	webOpts := web.Options{Metrics: m.Registry}
	if cfg.History.Path != "" {
		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return fmt.Errorf("open history: %w", err)
		}
		defer store.Close()
		opts.Recorder = store
		webOpts.History = store
	}

	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, webOpts)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				lg.Errorw("http server error", "error", err)
			}
		}()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
		lg.Infow("http status server listening", "addr", cfg.HTTP.Addr)
	}

	lg.Infow("started",
		"profile", cfg.Profile,
		"cycle", cfg.CycleInterval,
		"sampler", cfg.Sampler.Kind,
		"broker", cfg.MQTT.Broker,
		"history", cfg.History.Path,
	)

	ticker := time.NewTicker(cfg.CycleInterval)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	return control.New(opts).Run(ticker.C, sigCh)
}

func openSampler(cfg *config.Config, lg *logger.Logger) (sensor.Sampler, error) {
	switch cfg.Sampler.Kind {
	case config.SamplerLine:
		return sensor.OpenLineSampler(cfg.Sampler.Line.Path)
	default:
		return sensor.NewModbusSampler(cfg.ModbusSampler(), cfg.Scaling(), lg)
	}
}

// printOnce samples once and prints the status lines followed by the outputs
// a cycle would apply from an idle valve. Nothing is actuated.
func printOnce(w io.Writer, sampler sensor.Sampler, th logic.Thresholds) error {
	r, err := sampler.Sample()
	if err != nil {
		return fmt.Errorf("sample: %w", err)
	}
	if err := statusline.Write(w, r); err != nil {
		return err
	}
	intent := logic.Evaluate(r, th)
	out := logic.Resolve(intent, intent.ValveOpenRequested)
	_, err = fmt.Fprintf(w, "Fan: %s, Indicator: %s, Valve: %s\n",
		onOff(out.FanOn), onOff(out.IndicatorOn), onOff(out.ValveOpen))
	return err
}

// openStatusOutput resolves the status.output setting: "stdout", "stderr",
// "off" (or empty), or a file path opened for append.
func openStatusOutput(dest string) (io.Writer, func() error, error) {
	noop := func() error { return nil }
	switch dest {
	case "stdout":
		return os.Stdout, noop, nil
	case "stderr":
		return os.Stderr, noop, nil
	case "", "off":
		return nil, noop, nil
	}
	f, err := os.OpenFile(dest, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, noop, err
	}
	return f, f.Close, nil
}

func statusConfig(cfg *config.Config) status.Config {
	return status.Config{
		Profile:        cfg.Profile,
		CycleMs:        cfg.CycleInterval.Milliseconds(),
		MaxOpenMs:      cfg.Valve.MaxOpen.Milliseconds(),
		HeartbeatMs:    cfg.MQTT.Heartbeat.Milliseconds(),
		Thresholds:     cfg.LogicThresholds(),
		Broker:         cfg.MQTT.Broker,
		HTTPAddr:       cfg.HTTP.Addr,
		Sampler:        cfg.Sampler.Kind,
		HistoryEnabled: cfg.History.Path != "",
	}
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
