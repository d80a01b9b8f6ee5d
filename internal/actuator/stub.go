//go:build !linux

package actuator

import (
	"errors"

	"github.com/sweeney/greenhouse-controller/internal/logger"
	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// RealController is not available on non-Linux platforms.
type RealController struct{}

// NewRealController returns an error on non-Linux platforms.
func NewRealController(pins Pins, log *logger.Logger) (*RealController, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Apply does nothing on non-Linux platforms.
func (c *RealController) Apply(out logic.ActuatorOutputs) {}

// Close does nothing on non-Linux platforms.
func (c *RealController) Close() error {
	return nil
}
