package sensor

import (
	"errors"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// FakeSampler is a test double that returns scripted readings.
type FakeSampler struct {
	// Readings contains scripted readings. Each Sample call consumes the next one.
	Readings []logic.SensorReading

	index int

	// Calls counts Sample invocations.
	Calls int

	// Closed tracks if Close was called.
	Closed bool

	// SampleError, if set, is returned by Sample.
	SampleError error
}

// NewFakeSampler creates a FakeSampler with the given readings.
func NewFakeSampler(readings []logic.SensorReading) *FakeSampler {
	return &FakeSampler{Readings: readings}
}

// Sample returns the next scripted reading.
// If readings are exhausted, returns the last reading repeatedly.
func (f *FakeSampler) Sample() (logic.SensorReading, error) {
	f.Calls++
	if f.SampleError != nil {
		return logic.SensorReading{}, f.SampleError
	}
	if len(f.Readings) == 0 {
		return logic.SensorReading{}, errors.New("no readings configured")
	}

	r := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}
	return r, nil
}

// Close marks the sampler as closed.
func (f *FakeSampler) Close() error {
	f.Closed = true
	return nil
}

// Reset rewinds to the first reading.
func (f *FakeSampler) Reset() {
	f.index = 0
	f.Calls = 0
	f.Closed = false
}
