package sensor

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/simonvetter/modbus"

	"github.com/sweeney/greenhouse-controller/internal/logger"
	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// ModbusConfig describes an RS485 (or Modbus/TCP) sensor hub.
type ModbusConfig struct {
	URL      string // e.g. "rtu:///dev/ttyUSB0" or "tcp://192.168.1.50:502"
	Speed    uint
	DataBits uint
	Parity   string // "N", "E" or "O"
	StopBits uint
	Timeout  time.Duration
	UnitID   uint8

	// RegisterType is "input" or "holding".
	RegisterType string

	// Register addresses. Temperature and humidity are signed tenths,
	// gas and moisture are raw ADC counts.
	Temperature uint16
	Humidity    uint16
	Gas         uint16
	Moisture    uint16
}

// registerReader is the subset of *modbus.ModbusClient the sampler uses.
type registerReader interface {
	ReadRegister(addr uint16, regType modbus.RegType) (uint16, error)
	Close() error
}

// ModbusSampler reads the four channels from a Modbus sensor hub.
type ModbusSampler struct {
	client  registerReader
	cfg     ModbusConfig
	regType modbus.RegType
	scaling Scaling
	log     *logger.Logger

	// failing lists the channels that failed on the previous sample.
	failing string
}

// NewModbusSampler opens the bus and returns a sampler.
func NewModbusSampler(cfg ModbusConfig, scaling Scaling, log *logger.Logger) (*ModbusSampler, error) {
	var parity uint
	switch strings.ToUpper(cfg.Parity) {
	case "E", "EVEN":
		parity = modbus.PARITY_EVEN
	case "O", "ODD":
		parity = modbus.PARITY_ODD
	default:
		parity = modbus.PARITY_NONE
	}

	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:      cfg.URL,
		Speed:    cfg.Speed,
		DataBits: cfg.DataBits,
		Parity:   parity,
		StopBits: cfg.StopBits,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("create modbus client: %w", err)
	}
	if err := client.Open(); err != nil {
		return nil, fmt.Errorf("open modbus %s: %w", cfg.URL, err)
	}
	if err := client.SetUnitId(cfg.UnitID); err != nil {
		client.Close()
		return nil, fmt.Errorf("set unit id %d: %w", cfg.UnitID, err)
	}

	return newModbusSampler(client, cfg, scaling, log), nil
}

func newModbusSampler(client registerReader, cfg ModbusConfig, scaling Scaling, log *logger.Logger) *ModbusSampler {
	regType := modbus.INPUT_REGISTER
	if strings.EqualFold(cfg.RegisterType, "holding") {
		regType = modbus.HOLDING_REGISTER
	}
	return &ModbusSampler{
		client:  client,
		cfg:     cfg,
		regType: regType,
		scaling: scaling,
		log:     log,
	}
}

// Sample reads every channel. A channel whose register read fails is returned
// as NaN. Only when all four reads fail is the bus considered down.
// Partial failures are logged when the set of failing channels changes.
func (s *ModbusSampler) Sample() (logic.SensorReading, error) {
	var (
		errs   []error
		failed []string
	)

	read := func(name string, addr uint16, conv func(uint16) float64) float64 {
		v, err := s.client.ReadRegister(addr, s.regType)
		if err != nil {
			errs = append(errs, fmt.Errorf("read %s register %d: %w", name, addr, err))
			failed = append(failed, name)
			return math.NaN()
		}
		return conv(v)
	}

	tenths := func(v uint16) float64 { return float64(int16(v)) / 10 }

	r := logic.SensorReading{
		TemperatureC: read("temperature", s.cfg.Temperature, tenths),
		HumidityPct:  read("humidity", s.cfg.Humidity, tenths),
		GasConcentration: read("gas", s.cfg.Gas, func(v uint16) float64 {
			return GasFromCounts(float64(v), s.scaling)
		}),
		MoisturePct: read("moisture", s.cfg.Moisture, func(v uint16) float64 {
			return MoistureFromCounts(float64(v), s.scaling)
		}),
	}

	if len(errs) == 4 {
		s.failing = ""
		return logic.EmptyReading(), fmt.Errorf("modbus sensor hub unreachable: %w", errors.Join(errs...))
	}

	failing := strings.Join(failed, ",")
	if failing != s.failing {
		if failing != "" {
			s.log.Warnw("modbus channels failing", "channels", failing, "error", errors.Join(errs...))
		} else {
			s.log.Infow("modbus channels recovered", "channels", s.failing)
		}
		s.failing = failing
	}
	return r, nil
}

// Close closes the bus.
func (s *ModbusSampler) Close() error {
	return s.client.Close()
}
