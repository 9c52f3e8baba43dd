package junction

import (
	"fmt"

	"github.com/luckyComet55/junction-control/pkg/fsm"
)

// Signal is the aspect shown by a road or crossing head.
type Signal = fsm.State

const (
	Red         Signal = "RED"
	Yellow      Signal = "YELLOW"
	Green       Signal = "GREEN"
	RedFlashing Signal = "RED_FLASHING"
)

const (
	evYield     fsm.Event = "yield"
	evStop      fsm.Event = "stop"
	evHold      fsm.Event = "hold"
	evGo        fsm.Event = "go"
	evWalk      fsm.Event = "walk"
	evFlash     fsm.Event = "flash"
	evEmergency fsm.Event = "emergency"
)

const (
	metaKind = "kind"
	metaLane = "lane"

	kindRoad     = "road"
	kindCrossing = "crossing"
)

// lanes is the number of road/crossing pairs on the junction.
const lanes = 2

var initialRoads = [lanes]Signal{Red, Green}

// Result is the admission outcome of a request.
type Result int

const (
	Accepted Result = iota + 1
	// AlreadyActive: the road is GREEN or a switch toward it is pending.
	AlreadyActive
	// RoadActive: the paired road is GREEN or about to become GREEN.
	RoadActive
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case AlreadyActive:
		return "already_active"
	case RoadActive:
		return "road_active"
	default:
		return "invalid"
	}
}

// laneOf maps a 1-based road or crossing ID to a lane index.
func laneOf(kind string, id int) (int, error) {
	if id < 1 || id > lanes {
		return 0, fmt.Errorf("%s %d: %w", kind, id, ErrInvalidArgument)
	}
	return id - 1, nil
}

func other(lane int) int {
	return lanes - 1 - lane
}

func laneMeta(ctx *fsm.FSMContext) int {
	lane, _ := ctx.Meta[metaLane].(int)
	return lane
}

// buildHeads creates one FSM per road and crossing from two prototypes.
// Guards read sibling heads, so they must only run with s.mu held.
func (s *Sequencer) buildHeads() {
	road := fsm.NewFSM(Red).
		Transition(Green, evYield, Yellow).
		Transition(Yellow, evStop, Red).
		Transition(Red, evHold, Red).
		TransitionWhen(Red, evGo, Green, s.roadMayGo).
		TransitionFromAny([]Signal{Red, Yellow, Green}, evEmergency, Red).
		OnTransition(s.traceTransition)
	road.GetContext().Meta[metaKind] = kindRoad

	crossing := fsm.NewFSM(Red).
		TransitionWhen(Red, evWalk, Green, s.crossingMayWalk).
		Transition(Green, evFlash, RedFlashing).
		Transition(RedFlashing, evStop, Red).
		Transition(Green, evStop, Red).
		Transition(Red, evHold, Red).
		Transition(Green, evHold, Green).
		TransitionFromAny([]Signal{Red, Green, RedFlashing}, evEmergency, Red).
		OnTransition(s.traceTransition)
	crossing.GetContext().Meta[metaKind] = kindCrossing

	for i := range lanes {
		s.roads[i] = road.Copy(initialRoads[i])
		s.roads[i].GetContext().Meta[metaLane] = i
		s.crossings[i] = crossing.Copy(Red)
		s.crossings[i].GetContext().Meta[metaLane] = i
	}
}

func (s *Sequencer) roadMayGo(ctx *fsm.FSMContext) bool {
	lane := laneMeta(ctx)
	return s.roads[other(lane)].GetCurrent() == Red && s.crossings[lane].GetCurrent() == Red
}

func (s *Sequencer) crossingMayWalk(ctx *fsm.FSMContext) bool {
	return s.roads[laneMeta(ctx)].GetCurrent() == Red
}

func (s *Sequencer) traceTransition(from, to fsm.State, event fsm.Event, ctx *fsm.FSMContext) error {
	if from == to {
		return nil
	}
	s.logger.Debug("signal transition",
		"head", ctx.Meta[metaKind], "id", laneMeta(ctx)+1,
		"from", from, "to", to, "event", event)
	return nil
}

// toRed settles a head on RED: YELLOW and crossing aspects stop, RED is
// held. A GREEN road has no direct way to RED and must yield first.
func toRed(head *fsm.FSM) error {
	for _, ev := range []fsm.Event{evStop, evHold} {
		if head.Can(ev) {
			return head.Trigger(ev)
		}
	}
	return fmt.Errorf("%w: %v %d cannot turn RED from %s", fsm.ErrBadTransition,
		head.GetContext().Meta[metaKind], laneMeta(head.GetContext())+1, head.GetCurrent())
}

// yield starts clearing a road: GREEN turns YELLOW, RED is held.
func yield(head *fsm.FSM) error {
	if head.Can(evYield) {
		return head.Trigger(evYield)
	}
	return head.Trigger(evHold)
}

// derive sets a crossing to GREEN when its road is RED and RED otherwise.
func (s *Sequencer) derive(lane int) error {
	head := s.crossings[lane]
	want := Red
	if s.roads[lane].GetCurrent() == Red {
		want = Green
	}
	switch {
	case head.GetCurrent() == want:
		return head.Trigger(evHold)
	case want == Green:
		return head.Trigger(evWalk)
	default:
		return toRed(head)
	}
}
