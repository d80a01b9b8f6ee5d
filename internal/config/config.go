// Package config loads controller configuration from a YAML file, an optional
// .env file and GREENHOUSE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/sweeney/greenhouse-controller/internal/actuator"
	"github.com/sweeney/greenhouse-controller/internal/logger"
	"github.com/sweeney/greenhouse-controller/internal/logic"
	"github.com/sweeney/greenhouse-controller/internal/sensor"
)

// EnvPrefix prefixes environment overrides, e.g. GREENHOUSE_VALVE_MAX_OPEN.
const EnvPrefix = "GREENHOUSE"

// Sampler kinds.
const (
	SamplerModbus = "modbus"
	SamplerLine   = "line"
)

// Config is the full controller configuration. It is read once at startup.
type Config struct {
	Profile       string           `mapstructure:"profile"`
	CycleInterval time.Duration    `mapstructure:"cycle_interval"`
	Log           LogConfig        `mapstructure:"log"`
	Thresholds    ThresholdsConfig `mapstructure:"thresholds"`
	Valve         ValveConfig      `mapstructure:"valve"`
	Sampler       SamplerConfig    `mapstructure:"sampler"`
	Actuators     ActuatorsConfig  `mapstructure:"actuators"`
	MQTT          MQTTConfig       `mapstructure:"mqtt"`
	HTTP          HTTPConfig       `mapstructure:"http"`
	History       HistoryConfig    `mapstructure:"history"`
	Status        StatusConfig     `mapstructure:"status"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type ThresholdsConfig struct {
	GasPPM           float64 `mapstructure:"gas_ppm"`
	MoisturePct      float64 `mapstructure:"moisture_pct"`
	TemperatureC     float64 `mapstructure:"temperature_c"`
	HumidityPct      float64 `mapstructure:"humidity_pct"`
	IndicatorEnabled bool    `mapstructure:"indicator_enabled"`
}

type ValveConfig struct {
	MaxOpen time.Duration `mapstructure:"max_open"`
}

type SamplerConfig struct {
	Kind         string       `mapstructure:"kind"`
	GasScale     float64      `mapstructure:"gas_scale"`
	Vref         float64      `mapstructure:"vref"`
	ADCFullScale float64      `mapstructure:"adc_full_scale"`
	Modbus       ModbusConfig `mapstructure:"modbus"`
	Line         LineConfig   `mapstructure:"line"`
}

type ModbusConfig struct {
	URL          string        `mapstructure:"url"`
	Speed        uint          `mapstructure:"speed"`
	DataBits     uint          `mapstructure:"data_bits"`
	Parity       string        `mapstructure:"parity"`
	StopBits     uint          `mapstructure:"stop_bits"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UnitID       uint8         `mapstructure:"unit_id"`
	RegisterType string        `mapstructure:"register_type"`
	Temperature  uint16        `mapstructure:"temperature"`
	Humidity     uint16        `mapstructure:"humidity"`
	Gas          uint16        `mapstructure:"gas"`
	Moisture     uint16        `mapstructure:"moisture"`
}

type LineConfig struct {
	Path string `mapstructure:"path"`
}

type ActuatorsConfig struct {
	Chip      string `mapstructure:"chip"`
	Fan       int    `mapstructure:"fan"`
	Indicator int    `mapstructure:"indicator"`
	Valve     int    `mapstructure:"valve"`
	ActiveLow bool   `mapstructure:"active_low"`
}

type MQTTConfig struct {
	// Broker is empty to disable MQTT.
	Broker    string        `mapstructure:"broker"`
	ClientID  string        `mapstructure:"client_id"`
	Heartbeat time.Duration `mapstructure:"heartbeat"`
	Buffer    int           `mapstructure:"buffer"`
}

type HTTPConfig struct {
	// Addr is empty to disable the status server.
	Addr string `mapstructure:"addr"`
}

type HistoryConfig struct {
	// Path to the SQLite valve event log; empty disables it.
	Path string `mapstructure:"path"`
}

type StatusConfig struct {
	// Output is "stdout", "stderr", "off" or a file/device path.
	Output string `mapstructure:"output"`
}

// Load reads configuration. path may be empty, in which case config.yml is
// looked up in the working directory and ./configs; a missing file is not an
// error when path is empty.
func Load(path string) (*Config, error) {
	// .env is optional; existing environment variables take precedence.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("configs")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	profile := v.GetString("profile")
	if err := applyProfile(v, profile); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	pins := actuator.DefaultPins()

	v.SetDefault("profile", ProfileIrrigation)
	v.SetDefault("cycle_interval", time.Second)
	v.SetDefault("log.level", logger.InfoLevel)

	v.SetDefault("thresholds.gas_ppm", 800.0)
	v.SetDefault("thresholds.moisture_pct", 20.0)
	v.SetDefault("thresholds.temperature_c", 20.0)
	v.SetDefault("thresholds.humidity_pct", 60.0)
	v.SetDefault("thresholds.indicator_enabled", false)
	v.SetDefault("valve.max_open", 3*time.Second)

	v.SetDefault("sampler.kind", SamplerModbus)
	v.SetDefault("sampler.gas_scale", 1000.0)
	v.SetDefault("sampler.vref", sensor.DefaultScaling.Vref)
	v.SetDefault("sampler.adc_full_scale", sensor.DefaultScaling.FullScale)
	v.SetDefault("sampler.modbus.url", "rtu:///dev/ttyUSB0")
	v.SetDefault("sampler.modbus.speed", 9600)
	v.SetDefault("sampler.modbus.data_bits", 8)
	v.SetDefault("sampler.modbus.parity", "N")
	v.SetDefault("sampler.modbus.stop_bits", 1)
	v.SetDefault("sampler.modbus.timeout", 500*time.Millisecond)
	v.SetDefault("sampler.modbus.unit_id", 1)
	v.SetDefault("sampler.modbus.register_type", "input")
	v.SetDefault("sampler.modbus.temperature", 0)
	v.SetDefault("sampler.modbus.humidity", 1)
	v.SetDefault("sampler.modbus.gas", 2)
	v.SetDefault("sampler.modbus.moisture", 3)
	v.SetDefault("sampler.line.path", "/dev/ttyACM0")

	v.SetDefault("actuators.chip", pins.Chip)
	v.SetDefault("actuators.fan", pins.Fan)
	v.SetDefault("actuators.indicator", pins.Indicator)
	v.SetDefault("actuators.valve", pins.Valve)
	v.SetDefault("actuators.active_low", false)

	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.client_id", "greenhouse-controller")
	v.SetDefault("mqtt.heartbeat", 15*time.Minute)
	v.SetDefault("mqtt.buffer", 100)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("history.path", "")
	v.SetDefault("status.output", "stdout")
}

// Validate checks values that would make the controller misbehave.
func (c *Config) Validate() error {
	var errs []error

	if c.CycleInterval <= 0 {
		errs = append(errs, fmt.Errorf("cycle_interval must be positive, got %v", c.CycleInterval))
	}
	if c.Valve.MaxOpen <= 0 {
		errs = append(errs, fmt.Errorf("valve.max_open must be positive, got %v", c.Valve.MaxOpen))
	}
	// The uptime counter wraps at 2^32 ms; a longer timeout could never be measured.
	if c.Valve.MaxOpen >= time.Duration(math.MaxUint32)*time.Millisecond {
		errs = append(errs, fmt.Errorf("valve.max_open %v exceeds the counter range", c.Valve.MaxOpen))
	}
	if !logger.ValidLevel(c.Log.Level) {
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	if c.Sampler.GasScale <= 0 {
		errs = append(errs, fmt.Errorf("sampler.gas_scale must be positive, got %v", c.Sampler.GasScale))
	}
	if c.Sampler.ADCFullScale <= 0 {
		errs = append(errs, fmt.Errorf("sampler.adc_full_scale must be positive, got %v", c.Sampler.ADCFullScale))
	}
	switch c.Sampler.Kind {
	case SamplerModbus:
		if c.Sampler.Modbus.URL == "" {
			errs = append(errs, errors.New("sampler.modbus.url is required"))
		}
	case SamplerLine:
		if c.Sampler.Line.Path == "" {
			errs = append(errs, errors.New("sampler.line.path is required"))
		}
	default:
		errs = append(errs, fmt.Errorf("sampler.kind %q is not one of %s, %s", c.Sampler.Kind, SamplerModbus, SamplerLine))
	}
	a := c.Actuators
	if a.Fan == a.Valve || a.Fan == a.Indicator || a.Indicator == a.Valve {
		errs = append(errs, fmt.Errorf("actuator pins must be distinct (fan=%d indicator=%d valve=%d)", a.Fan, a.Indicator, a.Valve))
	}
	if c.MQTT.Buffer < 0 {
		errs = append(errs, fmt.Errorf("mqtt.buffer must not be negative, got %d", c.MQTT.Buffer))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// LogicThresholds returns the decision thresholds.
func (c *Config) LogicThresholds() logic.Thresholds {
	return logic.Thresholds{
		GasPPM:           c.Thresholds.GasPPM,
		MoisturePct:      c.Thresholds.MoisturePct,
		TemperatureC:     c.Thresholds.TemperatureC,
		HumidityPct:      c.Thresholds.HumidityPct,
		IndicatorEnabled: c.Thresholds.IndicatorEnabled,
	}
}

// Scaling returns the analog conversion parameters.
func (c *Config) Scaling() sensor.Scaling {
	return sensor.Scaling{
		FullScale: c.Sampler.ADCFullScale,
		Vref:      c.Sampler.Vref,
		GasScale:  c.Sampler.GasScale,
	}
}

// ModbusSampler returns the sensor hub settings.
func (c *Config) ModbusSampler() sensor.ModbusConfig {
	m := c.Sampler.Modbus
	return sensor.ModbusConfig{
		URL:          m.URL,
		Speed:        m.Speed,
		DataBits:     m.DataBits,
		Parity:       m.Parity,
		StopBits:     m.StopBits,
		Timeout:      m.Timeout,
		UnitID:       m.UnitID,
		RegisterType: m.RegisterType,
		Temperature:  m.Temperature,
		Humidity:     m.Humidity,
		Gas:          m.Gas,
		Moisture:     m.Moisture,
	}
}

// Pins returns the actuator pin assignments.
func (c *Config) Pins() actuator.Pins {
	return actuator.Pins{
		Chip:      c.Actuators.Chip,
		Fan:       c.Actuators.Fan,
		Indicator: c.Actuators.Indicator,
		Valve:     c.Actuators.Valve,
		ActiveLow: c.Actuators.ActiveLow,
	}
}
