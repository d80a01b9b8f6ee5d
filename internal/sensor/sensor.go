// Package sensor provides sensor sampling with hardware abstraction.
// The Modbus implementation reads an RS485 sensor hub, the line implementation
// reads a microcontroller's status stream, and the fake allows testing without
// hardware.
package sensor

import "github.com/sweeney/greenhouse-controller/internal/logic"

// Sampler produces one reading per cycle.
type Sampler interface {
	// Sample blocks for the duration of a hardware read.
	// A value that could not be read comes back as NaN in the reading; an
	// error means the transport itself failed.
	Sample() (logic.SensorReading, error)

	// Close releases sampler resources.
	Close() error
}

// Scaling of the analog front end.
type Scaling struct {
	// FullScale is the ADC count at Vref (1023 for a 10-bit ADC).
	FullScale float64
	// Vref is the ADC reference voltage.
	Vref float64
	// GasScale converts sensor volts to ppm-equivalent. Hardware variants
	// differ (100 or 1000), so it always comes from configuration.
	GasScale float64
}

// DefaultScaling matches a 10-bit ADC at 5V.
var DefaultScaling = Scaling{FullScale: 1023, Vref: 5.0, GasScale: 100}

// GasFromCounts converts a raw gas sensor ADC count to ppm-equivalent.
func GasFromCounts(counts float64, s Scaling) float64 {
	volts := counts * (s.Vref / s.FullScale)
	return volts * s.GasScale
}

// MoistureFromCounts converts a raw soil probe ADC count to percent.
// The probe reads high when dry, so full scale is 0%.
func MoistureFromCounts(counts float64, s Scaling) float64 {
	return 100 - (counts/s.FullScale)*100
}
