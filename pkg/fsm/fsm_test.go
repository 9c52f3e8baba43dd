package fsm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	red    State = "RED"
	yellow State = "YELLOW"
	green  State = "GREEN"
)

func lamp() *FSM {
	return NewFSM(red).
		Transition(red, "go", green).
		Transition(green, "yield", yellow).
		Transition(yellow, "stop", red)
}

func TestTriggerFollowsTable(t *testing.T) {
	f := lamp()

	require.NoError(t, f.Trigger("go"))
	assert.Equal(t, green, f.GetCurrent())
	require.NoError(t, f.Trigger("yield"))
	require.NoError(t, f.Trigger("stop"))
	assert.Equal(t, red, f.GetCurrent())
}

func TestTriggerRejectsIllegalEvent(t *testing.T) {
	f := lamp()

	err := f.Trigger("yield")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrBadTransition))
	assert.Equal(t, red, f.GetCurrent())
}

func TestTriggerWithoutOutgoingTransitions(t *testing.T) {
	f := NewFSM("sink")

	err := f.Trigger("anything")
	assert.ErrorIs(t, err, ErrBadTransition)
}

func TestGuardBlocksTransition(t *testing.T) {
	allowed := false
	f := NewFSM(red).TransitionWhen(red, "go", green, func(ctx *FSMContext) bool {
		return allowed
	})

	assert.False(t, f.Can("go"))
	assert.ErrorIs(t, f.Trigger("go"), ErrBadTransition)

	allowed = true
	assert.True(t, f.Can("go"))
	require.NoError(t, f.Trigger("go"))
	assert.Equal(t, green, f.GetCurrent())
}

func TestAmbiguousTransitionsRejected(t *testing.T) {
	f := NewFSM(red).
		Transition(red, "go", green).
		Transition(red, "go", yellow)

	err := f.Trigger("go")
	assert.ErrorIs(t, err, ErrBadTransition)
	assert.Equal(t, red, f.GetCurrent())
}

func TestCallbackOrder(t *testing.T) {
	var calls []string
	f := lamp().
		OnExit(red, func(ctx *FSMContext) error {
			calls = append(calls, "exit:"+string(ctx.State))
			return nil
		}).
		OnTransition(func(from, to State, event Event, ctx *FSMContext) error {
			calls = append(calls, "transition:"+string(from)+"->"+string(to)+":"+string(event))
			return nil
		}).
		OnEnter(green, func(ctx *FSMContext) error {
			calls = append(calls, "enter:"+string(ctx.State))
			return nil
		})

	require.NoError(t, f.Trigger("go", 42))
	assert.Equal(t, []string{"exit:RED", "transition:RED->GREEN:go", "enter:GREEN"}, calls)
	assert.Equal(t, 42, f.GetContext().Input)
	assert.Equal(t, Event("go"), f.GetContext().Event)
}

func TestCallbackErrorAbortsMove(t *testing.T) {
	boom := errors.New("boom")
	f := lamp().OnEnter(green, func(ctx *FSMContext) error { return boom })

	assert.ErrorIs(t, f.Trigger("go"), boom)
	assert.Equal(t, red, f.GetCurrent())
}

func TestCopySharesTableNotState(t *testing.T) {
	proto := lamp()
	proto.GetContext().Meta["kind"] = "road"

	a := proto.Copy(red)
	b := proto.Copy(green)
	a.GetContext().Meta["lane"] = 0

	require.NoError(t, a.Trigger("go"))
	assert.Equal(t, green, a.GetCurrent())
	assert.Equal(t, green, b.GetCurrent())
	assert.Equal(t, red, proto.GetCurrent())

	assert.Equal(t, "road", b.GetContext().Meta["kind"])
	_, leaked := b.GetContext().Meta["lane"]
	assert.False(t, leaked)
	assert.Equal(t, green, b.GetInitial())
}

func TestTransitionFromAny(t *testing.T) {
	f := lamp().TransitionFromAny([]State{red, yellow, green}, "emergency", red)

	require.NoError(t, f.Trigger("go"))
	require.NoError(t, f.Trigger("emergency"))
	assert.Equal(t, red, f.GetCurrent())
	require.NoError(t, f.Trigger("emergency"))
}
