package junction

import (
	"fmt"
	"log/slog"
)

// Notifier receives every published snapshot. It is called with the junction
// lock held, in publication order, so it must not block or call back into the
// Sequencer.
type Notifier interface {
	OnStateChange(snapshot Snapshot)
}

type NotifierFunc func(snapshot Snapshot)

func (f NotifierFunc) OnStateChange(snapshot Snapshot) {
	f(snapshot)
}

// Notifiers fans a snapshot out to every element. A panicking element does not
// prevent delivery to the rest.
type Notifiers []Notifier

func (ns Notifiers) OnStateChange(snapshot Snapshot) {
	for _, n := range ns {
		_ = deliver(n, snapshot)
	}
}

func deliver(n Notifier, snapshot Snapshot) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notifier panic: %v", r)
		}
	}()
	n.OnStateChange(snapshot)
	return nil
}

// LogNotifier writes every snapshot to logger at info level.
func LogNotifier(logger *slog.Logger) Notifier {
	return NotifierFunc(func(s Snapshot) {
		logger.Info("junction state",
			"seq", s.Seq,
			"phase", s.Phase,
			"road1", s.Roads[0],
			"road2", s.Roads[1],
			"ped1", s.Crossings[0],
			"ped2", s.Crossings[1],
			"sequence", s.SequenceID,
		)
	})
}
