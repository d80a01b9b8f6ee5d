//go:build linux

package actuator

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/greenhouse-controller/internal/logger"
	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// output is one driven line and the last value successfully written to it.
type output struct {
	name    string
	line    *gpiocdev.Line
	value   int
	written bool
}

// RealController drives actuators on actual hardware using the Linux GPIO
// character device.
type RealController struct {
	chip      *gpiocdev.Chip
	fan       *output
	indicator *output
	valve     *output
	log       *logger.Logger
}

// NewRealController requests the three output lines, all starting inactive.
func NewRealController(pins Pins, log *logger.Logger) (*RealController, error) {
	chip, err := gpiocdev.NewChip(pins.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", pins.Chip, err)
	}

	opts := []gpiocdev.LineReqOption{gpiocdev.AsOutput(0)}
	if pins.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	c := &RealController{chip: chip, log: log}
	for _, req := range []struct {
		name string
		pin  int
		dst  **output
	}{
		{"fan", pins.Fan, &c.fan},
		{"indicator", pins.Indicator, &c.indicator},
		{"valve", pins.Valve, &c.valve},
	} {
		line, err := chip.RequestLine(req.pin, opts...)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", req.name, req.pin, err)
		}
		*req.dst = &output{name: req.name, line: line, written: true}
	}

	return c, nil
}

// Apply writes outputs whose value differs from the last successful write.
func (c *RealController) Apply(out logic.ActuatorOutputs) {
	c.set(c.fan, out.FanOn)
	c.set(c.indicator, out.IndicatorOn)
	c.set(c.valve, out.ValveOpen)
}

func (c *RealController) set(o *output, on bool) {
	v := boolToValue(on)
	if o.written && o.value == v {
		return
	}
	if err := o.line.SetValue(v); err != nil {
		// Forget the cached value so the next cycle retries.
		o.written = false
		c.log.Warnw("actuator write failed", "output", o.name, "value", v, "err", err)
		return
	}
	o.value = v
	o.written = true
}

// Close drives all outputs inactive (valve closed), then reconfigures the
// lines to input with pull-down, matching Raspberry Pi boot defaults, before
// releasing them.
func (c *RealController) Close() error {
	var errs []error

	for _, o := range []*output{c.fan, c.indicator, c.valve} {
		if o == nil {
			continue
		}
		if err := o.line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("drive %s inactive: %w", o.name, err))
		}
		if err := o.line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", o.name, err))
		}
		if err := o.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", o.name, err))
		}
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %w", errors.Join(errs...))
	}
	return nil
}
