package logic

import "time"

// ValveState is either Idle or Open since a given uptime.
// The zero value is Idle. An opening time exists only while Open.
type ValveState struct {
	open     bool
	openedAt Millis
}

// Idle returns the closed valve state.
func Idle() ValveState {
	return ValveState{}
}

// OpenSince returns an open valve state opened at t.
func OpenSince(t Millis) ValveState {
	return ValveState{open: true, openedAt: t}
}

// IsOpen reports whether the state is Open.
func (s ValveState) IsOpen() bool {
	return s.open
}

// OpenedAt returns when the valve opened. ok is false for Idle.
func (s ValveState) OpenedAt() (t Millis, ok bool) {
	if !s.open {
		return 0, false
	}
	return s.openedAt, true
}

func (s ValveState) String() string {
	if s.open {
		return "OPEN"
	}
	return "IDLE"
}

// Step is the valve transition function.
//
//   - Idle + request: open now.
//   - Open + no request: close immediately, ahead of any timeout check.
//   - Open + request, open for maxOpen or longer: close. Reopening needs a later
//     step from Idle.
//   - Otherwise the state is unchanged.
func Step(s ValveState, requested bool, now Millis, maxOpen time.Duration) (ValveState, Transition) {
	if !s.open {
		if requested {
			return OpenSince(now), TransitionOpened
		}
		return s, TransitionNone
	}

	if !requested {
		return Idle(), TransitionClosedByMoisture
	}

	if Elapsed(now, s.openedAt) >= maxOpen {
		return Idle(), TransitionClosedByTimeout
	}

	return s, TransitionNone
}

// ValveTimer owns the valve state and enforces the maximum open duration.
// It never advances on its own; the control loop calls Advance once per cycle.
type ValveTimer struct {
	maxOpen time.Duration
	state   ValveState
}

// NewValveTimer creates an idle timer with the given maximum open duration.
func NewValveTimer(maxOpen time.Duration) *ValveTimer {
	return &ValveTimer{maxOpen: maxOpen}
}

// Advance applies one transition and returns what happened.
func (v *ValveTimer) Advance(requested bool, now Millis) Transition {
	next, tr := Step(v.state, requested, now, v.maxOpen)
	v.state = next
	return tr
}

// Open reports whether the valve should currently be open.
func (v *ValveTimer) Open() bool {
	return v.state.IsOpen()
}

// State returns the current state.
func (v *ValveTimer) State() ValveState {
	return v.state
}

// MaxOpen returns the configured maximum open duration.
func (v *ValveTimer) MaxOpen() time.Duration {
	return v.maxOpen
}

// OpenFor returns how long the valve has been open at now, or 0 when idle.
func (v *ValveTimer) OpenFor(now Millis) time.Duration {
	t, ok := v.state.OpenedAt()
	if !ok {
		return 0
	}
	return Elapsed(now, t)
}
