// Package actuator drives the fan, indicator and valve outputs with hardware
// abstraction. The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package actuator

import "github.com/sweeney/greenhouse-controller/internal/logic"

// Controller applies resolved outputs to physical actuators.
type Controller interface {
	// Apply writes each output. Applying the same outputs again has no further
	// effect. Write failures are not returned; the next cycle writes again.
	Apply(out logic.ActuatorOutputs)

	// Close drives every output inactive and releases resources.
	Close() error
}

// Default pin assignments (BCM numbering)
const (
	DefaultPinFan       = 17
	DefaultPinIndicator = 27
	DefaultPinValve     = 22
)

// Pins selects the GPIO chip and line offsets.
type Pins struct {
	Chip      string
	Fan       int
	Indicator int
	Valve     int

	// ActiveLow is set for relay boards that switch on a low level.
	ActiveLow bool
}

// DefaultPins returns the default assignments on gpiochip0.
func DefaultPins() Pins {
	return Pins{
		Chip:      "gpiochip0",
		Fan:       DefaultPinFan,
		Indicator: DefaultPinIndicator,
		Valve:     DefaultPinValve,
	}
}

func boolToValue(on bool) int {
	if on {
		return 1
	}
	return 0
}
