package actuator

import "github.com/sweeney/greenhouse-controller/internal/logic"

// FakeController is a test double that records applied outputs.
type FakeController struct {
	// State is the current output state as the hardware would show it.
	State logic.ActuatorOutputs

	// Applied contains every Apply call in order.
	Applied []logic.ActuatorOutputs

	// Changes counts Apply calls that changed State.
	Changes int

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakeController creates a FakeController with every output off.
func NewFakeController() *FakeController {
	return &FakeController{}
}

// Apply records out and updates State.
func (f *FakeController) Apply(out logic.ActuatorOutputs) {
	f.Applied = append(f.Applied, out)
	if out != f.State {
		f.Changes++
	}
	f.State = out
}

// Close drives every output off and marks the controller closed.
func (f *FakeController) Close() error {
	f.State = logic.ActuatorOutputs{}
	f.Closed = true
	return nil
}

// Reset clears recorded calls.
func (f *FakeController) Reset() {
	f.State = logic.ActuatorOutputs{}
	f.Applied = nil
	f.Changes = 0
	f.Closed = false
}
