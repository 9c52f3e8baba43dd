package junction

import (
	"errors"
	"fmt"
	"time"
)

// Phase names the mutation that produced a snapshot.
type Phase string

const (
	PhaseInitial   Phase = "initial"
	PhaseEmergency Phase = "emergency"
	PhaseYield     Phase = "road.yield"
	PhaseAllRed    Phase = "road.all_red"
	PhaseGreen     Phase = "road.green"
	PhaseDerive    Phase = "pedestrian.derive"
	PhaseWalk      Phase = "crossing.walk"
	PhaseFlash     Phase = "crossing.flash"
	PhaseDontWalk  Phase = "crossing.dont_walk"
)

// Snapshot is an immutable copy of the junction state. Index 0 of Roads and
// Crossings is road/crossing 1.
type Snapshot struct {
	Seq        uint64
	Mode       Mode
	Roads      [lanes]Signal
	Crossings  [lanes]Signal
	Phase      Phase
	SequenceID string
	At         time.Time
}

// Road returns the signal of road id, or "" when id is out of range.
func (s Snapshot) Road(id int) Signal {
	if id < 1 || id > lanes {
		return ""
	}
	return s.Roads[id-1]
}

// Crossing returns the signal of crossing id, or "" when id is out of range.
func (s Snapshot) Crossing(id int) Signal {
	if id < 1 || id > lanes {
		return ""
	}
	return s.Crossings[id-1]
}

// Validate checks vehicle exclusivity and pedestrian safety.
func (s Snapshot) Validate() error {
	var errs []error
	if s.Roads[0] == Green && s.Roads[1] == Green {
		errs = append(errs, errors.New("both roads are GREEN"))
	}
	for i := range lanes {
		if s.Crossings[i] != Red && s.Roads[i] != Red {
			errs = append(errs, fmt.Errorf("crossing %d is %s while road %d is %s", i+1, s.Crossings[i], i+1, s.Roads[i]))
		}
	}
	return errors.Join(errs...)
}

func (s Snapshot) String() string {
	return fmt.Sprintf("Road 1: %s, Road 2: %s | Ped 1: %s, Ped 2: %s",
		s.Roads[0], s.Roads[1], s.Crossings[0], s.Crossings[1])
}
