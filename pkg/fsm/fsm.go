package fsm

import (
	"errors"
	"fmt"
	"maps"
)

// ErrBadTransition is returned by Trigger when the event has no single legal
// transition out of the current state.
var ErrBadTransition = errors.New("bad transition")

func NewFSM(initial State) *FSM {
	return &FSM{
		initial:      initial,
		current:      initial,
		transitions:  make(map[State][]transition),
		onEnter:      make(map[State][]Callback),
		onExit:       make(map[State][]Callback),
		onTransition: make([]TransitionCallback, 0),
		ctx:          newFSMContext(initial),
	}
}

// Copy returns a machine sharing the transition table and callbacks of fsm,
// positioned at initial with a fresh context. Meta is carried over.
func (fsm *FSM) Copy(initial State) *FSM {
	fsm.mu.RLock()
	defer fsm.mu.RUnlock()

	ctx := newFSMContext(initial)
	maps.Copy(ctx.Meta, fsm.ctx.Meta)

	return &FSM{
		initial:      initial,
		current:      initial,
		transitions:  fsm.transitions,
		onEnter:      fsm.onEnter,
		onExit:       fsm.onExit,
		onTransition: fsm.onTransition,
		ctx:          ctx,
	}
}

func (fsm *FSM) GetContext() *FSMContext {
	return fsm.ctx
}

func (fsm *FSM) GetCurrent() State {
	fsm.mu.RLock()
	defer fsm.mu.RUnlock()

	return fsm.current
}

func (fsm *FSM) GetInitial() State {
	return fsm.initial
}

// Can reports whether event would be accepted from the current state.
func (fsm *FSM) Can(event Event) bool {
	fsm.mu.RLock()
	defer fsm.mu.RUnlock()

	return len(fsm.match(event)) == 1
}

func (fsm *FSM) TransitionWhen(from State, event Event, to State, guard GuardFunc) *FSM {
	_, ok := fsm.transitions[from]
	if !ok {
		fsm.transitions[from] = make([]transition, 0)
	}
	fsm.transitions[from] = append(fsm.transitions[from], transition{event, to, guard})

	return fsm
}

func (fsm *FSM) Transition(from State, event Event, to State) *FSM {
	return fsm.TransitionWhen(from, event, to, nil)
}

// TransitionFromAny registers event -> to from every listed state.
func (fsm *FSM) TransitionFromAny(states []State, event Event, to State) *FSM {
	for _, from := range states {
		fsm.Transition(from, event, to)
	}
	return fsm
}

func (fsm *FSM) OnEnter(state State, cb Callback) *FSM {
	_, ok := fsm.onEnter[state]
	if !ok {
		fsm.onEnter[state] = make([]Callback, 0)
	}
	fsm.onEnter[state] = append(fsm.onEnter[state], cb)

	return fsm
}

func (fsm *FSM) OnExit(state State, cb Callback) *FSM {
	_, ok := fsm.onExit[state]
	if !ok {
		fsm.onExit[state] = make([]Callback, 0)
	}
	fsm.onExit[state] = append(fsm.onExit[state], cb)

	return fsm
}

func (fsm *FSM) OnTransition(cb TransitionCallback) *FSM {
	fsm.onTransition = append(fsm.onTransition, cb)
	return fsm
}

func (fsm *FSM) match(event Event) []transition {
	mustTransit := make([]transition, 0)
	for _, t := range fsm.transitions[fsm.current] {
		if t.event == event && (t.guard == nil || t.guard(fsm.ctx)) {
			mustTransit = append(mustTransit, t)
		}
	}
	return mustTransit
}

// Trigger fires event. Exactly one transition must match; callbacks run in
// exit, transition, enter order and any callback error aborts the move.
func (fsm *FSM) Trigger(event Event, input ...any) error {
	fsm.mu.Lock()
	defer fsm.mu.Unlock()

	if len(input) > 0 {
		fsm.ctx.Input = input[0]
	} else {
		fsm.ctx.Input = nil
	}
	fsm.ctx.Event = event

	if _, ok := fsm.transitions[fsm.current]; !ok {
		return fmt.Errorf("%w: no transitions from %s", ErrBadTransition, fsm.current)
	}

	mustTransit := fsm.match(event)
	switch len(mustTransit) {
	case 0:
		return fmt.Errorf("%w: %s not allowed from %s", ErrBadTransition, event, fsm.current)
	case 1:
	default:
		return fmt.Errorf("%w: ambigous transitions. must be 1, found %d", ErrBadTransition, len(mustTransit))
	}

	t := mustTransit[0]
	prevState := fsm.current
	nextState := t.to

	fsm.ctx.State = prevState

	for _, cb := range fsm.onExit[prevState] {
		if err := cb(fsm.ctx); err != nil {
			return err
		}
	}

	fsm.ctx.State = nextState

	for _, trCb := range fsm.onTransition {
		if err := trCb(prevState, nextState, event, fsm.ctx); err != nil {
			fsm.ctx.State = prevState
			return err
		}
	}

	for _, cb := range fsm.onEnter[nextState] {
		if err := cb(fsm.ctx); err != nil {
			fsm.ctx.State = prevState
			return err
		}
	}

	fsm.current = nextState

	return nil
}
