// Package clock provides the controller's time sources.
package clock

import (
	"time"

	"github.com/sweeney/greenhouse-controller/internal/logic"
)

// Clock supplies wall time for timestamps and a wrapping uptime counter for
// the valve timer.
type Clock interface {
	Now() time.Time
	Millis() logic.Millis
}

// Monotonic derives its millisecond counter from Go's monotonic clock reading.
// The counter is truncated to 32 bits and wraps after about 49.7 days.
type Monotonic struct {
	start  time.Time
	offset uint32
}

// NewMonotonic starts a counter at zero.
func NewMonotonic() *Monotonic {
	return &Monotonic{start: time.Now()}
}

// NewMonotonicAt starts a counter at offset. Used to exercise wraparound soon
// after startup.
func NewMonotonicAt(offset uint32) *Monotonic {
	return &Monotonic{start: time.Now(), offset: offset}
}

// Now returns the current wall time.
func (m *Monotonic) Now() time.Time {
	return time.Now()
}

// Millis returns milliseconds since start plus the offset, modulo 2^32.
func (m *Monotonic) Millis() logic.Millis {
	ms := uint64(time.Since(m.start) / time.Millisecond)
	return logic.Millis(uint32(ms) + m.offset)
}
