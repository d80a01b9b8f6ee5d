package clock

import (
	"time"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// Fake is a manually advanced clock for tests.
// Not safe for concurrent use.
type Fake struct {
	wall   time.Time
	millis logic.Millis

	// Step, if non-zero, advances the clock after every Millis call.
	Step time.Duration
}

// NewFake creates a Fake at the given wall time and counter value.
func NewFake(wall time.Time, millis logic.Millis) *Fake {
	return &Fake{wall: wall, millis: millis}
}

// Now returns the fake wall time.
func (f *Fake) Now() time.Time {
	return f.wall
}

// Millis returns the fake counter, then applies Step if set.
func (f *Fake) Millis() logic.Millis {
	m := f.millis
	if f.Step != 0 {
		f.Advance(f.Step)
	}
	return m
}

// Advance moves both wall time and the counter forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.wall = f.wall.Add(d)
	f.millis += logic.Millis(d / time.Millisecond)
}
