package fsm

// FSMContext is handed to guards and callbacks. Meta is set once by the owner
// (head name, lane index), Data is free-form per machine.
type FSMContext struct {
	State State
	Event Event
	Input any
	Data  map[string]any
	Meta  map[string]any
}

func newFSMContext(initial State) *FSMContext {
	return &FSMContext{
		State: initial,
		Input: nil,
		Data:  make(map[string]any),
		Meta:  make(map[string]any),
	}
}
