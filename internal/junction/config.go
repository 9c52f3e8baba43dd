package junction

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
)

// Mode selects what the pedestrian signals mean on a junction instance.
type Mode int

const (
	// ModeManual: crossings are requested and run a timed walk cycle.
	ModeManual Mode = iota
	// ModeAuto: crossings are derived from road state after every road switch.
	ModeAuto
)

func (m Mode) String() string {
	if m == ModeAuto {
		return "auto"
	}
	return "manual"
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "manual":
		return ModeManual, nil
	case "auto", "automatic":
		return ModeAuto, nil
	default:
		return ModeManual, fmt.Errorf("unknown junction mode %q, possible values: manual, auto", s)
	}
}

// Timing holds the phase delays of both sequences.
type Timing struct {
	Yellow    time.Duration
	Clearance time.Duration
	Walk      time.Duration
	Flash     time.Duration
	// Flashing enables the RED_FLASHING phase of the crossing sequence.
	Flashing bool
}

func DefaultTiming() Timing {
	return Timing{
		Yellow:    3 * time.Second,
		Clearance: time.Second,
		Walk:      10 * time.Second,
		Flash:     3 * time.Second,
		Flashing:  true,
	}
}

func (t Timing) Validate() error {
	var errs []error
	if t.Yellow <= 0 {
		errs = append(errs, fmt.Errorf("yellow duration must be positive, got %s", t.Yellow))
	}
	if t.Clearance <= 0 {
		errs = append(errs, fmt.Errorf("clearance duration must be positive, got %s", t.Clearance))
	}
	if t.Walk <= 0 {
		errs = append(errs, fmt.Errorf("walk duration must be positive, got %s", t.Walk))
	}
	if t.Flashing && t.Flash <= 0 {
		errs = append(errs, fmt.Errorf("flash duration must be positive, got %s", t.Flash))
	}
	return errors.Join(errs...)
}

type Config struct {
	Mode   Mode
	Timing Timing
	// Clock drives phase timers; nil means the real clock.
	Clock clockwork.Clock
}
