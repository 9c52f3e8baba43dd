// Package junction runs the signal sequencer of a two-road, two-crossing
// junction.
//
// All state lives on the Sequencer and is changed only by phase writes of
// accepted sequences, each made under one lock and published to the Notifier.
// Conflicting sequences are chained per lane in admission order, so a road
// switch never overlaps a crossing cycle on either road.
package junction

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/luckyComet55/junction-control/pkg/fsm"
)

type Sequencer struct {
	logger   *slog.Logger
	notifier Notifier
	clock    clockwork.Clock
	mode     Mode
	timing   Timing

	mu        sync.Mutex
	roads     [lanes]*fsm.FSM
	crossings [lanes]*fsm.FSM
	last      Snapshot
	closed    bool

	// pending road switches by target, cleared by their owner on exit
	pendingRoad [lanes]*sequence
	// tails[i] is closed once the last sequence queued on lane i is done
	tails [lanes]chan struct{}

	root        context.Context
	stop        context.CancelFunc
	epoch       context.Context
	cancelEpoch context.CancelFunc
	wg          sync.WaitGroup
}

type sequence struct {
	id     string
	kind   string
	lane   int
	ctx    context.Context
	wait   []chan struct{}
	done   chan struct{}
	logger *slog.Logger
}

// New builds a sequencer in the initial configuration: road 1 RED, road 2
// GREEN, both crossings RED. notifier may be nil.
func New(cfg Config, notifier Notifier, logger *slog.Logger) (*Sequencer, error) {
	if err := cfg.Timing.Validate(); err != nil {
		return nil, fmt.Errorf("junction timing: %w", err)
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if notifier == nil {
		notifier = Notifiers{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Sequencer{
		logger:   logger,
		notifier: notifier,
		clock:    cfg.Clock,
		mode:     cfg.Mode,
		timing:   cfg.Timing,
	}
	s.buildHeads()
	for i := range s.tails {
		s.tails[i] = make(chan struct{})
		close(s.tails[i])
	}
	s.root, s.stop = context.WithCancel(context.Background())
	s.epoch, s.cancelEpoch = context.WithCancel(s.root)
	s.last = s.snapshotLocked(PhaseInitial, "")

	return s, nil
}

func (s *Sequencer) Mode() Mode {
	return s.mode
}

func (s *Sequencer) Timing() Timing {
	return s.timing
}

// Snapshot returns the last published state.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.last
}

// RequestRoad asks for right-of-way on road id. On acceptance the road switch
// runs in the background; the call does not wait for it.
func (s *Sequencer) RequestRoad(id int) (Result, error) {
	lane, err := laneOf(kindRoad, id)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	if s.roads[lane].GetCurrent() == Green || s.pendingRoad[lane] != nil {
		s.logger.Info("road request rejected", "road", id, "result", AlreadyActive,
			"signal", s.roads[lane].GetCurrent(), "pending", s.pendingRoad[lane] != nil)
		return AlreadyActive, nil
	}

	seq := s.admitLocked(kindRoad, lane, 0, 1)
	s.pendingRoad[lane] = seq
	s.logger.Info("road request accepted", "road", id, "sequence", seq.id)
	s.spawn(seq, s.runRoad)

	return Accepted, nil
}

// RequestCrossing asks for a walk phase on crossing id. Only valid in manual
// mode. A request made while the crossing is already cycling is queued and
// runs a full cycle after the current one.
func (s *Sequencer) RequestCrossing(id int) (Result, error) {
	lane, err := laneOf(kindCrossing, id)
	if err != nil {
		return 0, err
	}
	if s.mode != ModeManual {
		return 0, fmt.Errorf("crossing %d: %w", id, ErrModeUnsupported)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrClosed
	}

	if s.roads[lane].GetCurrent() == Green || s.pendingRoad[lane] != nil {
		s.logger.Info("crossing request rejected", "crossing", id, "result", RoadActive,
			"road", s.roads[lane].GetCurrent())
		return RoadActive, nil
	}
	seq := s.admitLocked(kindCrossing, lane, lane)
	s.logger.Info("crossing request accepted", "crossing", id, "sequence", seq.id)
	s.spawn(seq, s.runCrossing)

	return Accepted, nil
}

// EmergencyStop forces every head RED and cancels all queued and running
// sequences. It always succeeds.
func (s *Sequencer) EmergencyStop() Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelEpoch()
	s.epoch, s.cancelEpoch = context.WithCancel(s.root)
	s.pendingRoad = [lanes]*sequence{}

	id := uuid.New().String()
	for _, head := range s.heads() {
		if err := head.Trigger(evEmergency); err != nil {
			s.logger.Error("emergency stop", "err", err)
		}
	}
	s.publishLocked(PhaseEmergency, id)
	s.logger.Warn("emergency stop", "sequence", id)

	return Accepted
}

// Close cancels every sequence and waits for their goroutines to exit.
// Requests made afterwards fail with ErrClosed.
func (s *Sequencer) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stop()
	s.mu.Unlock()

	s.wg.Wait()
	return nil
}

func (s *Sequencer) heads() []*fsm.FSM {
	return []*fsm.FSM{s.roads[0], s.roads[1], s.crossings[0], s.crossings[1]}
}

// admitLocked queues a sequence behind whatever currently holds the given
// lanes.
func (s *Sequencer) admitLocked(kind string, lane int, hold ...int) *sequence {
	seq := &sequence{
		id:   uuid.New().String(),
		kind: kind,
		lane: lane,
		ctx:  s.epoch,
		done: make(chan struct{}),
	}
	seq.logger = s.logger.With("sequence", seq.id, kind, lane+1)
	for _, l := range hold {
		seq.wait = append(seq.wait, s.tails[l])
		s.tails[l] = seq.done
	}
	return seq
}

func (s *Sequencer) spawn(seq *sequence, run func(*sequence)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(seq.done)
		defer s.finish(seq)

		for _, ch := range seq.wait {
			select {
			case <-ch:
			case <-seq.ctx.Done():
				seq.logger.Debug("sequence cancelled while queued")
				return
			}
		}
		run(seq)
	}()
}

func (s *Sequencer) finish(seq *sequence) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pendingRoad[seq.lane] == seq {
		s.pendingRoad[seq.lane] = nil
	}
}

func (s *Sequencer) runRoad(seq *sequence) {
	lane, opp := seq.lane, other(seq.lane)

	if !s.apply(seq, PhaseYield, func() error {
		if err := toRed(s.crossings[lane]); err != nil {
			return err
		}
		if err := toRed(s.roads[lane]); err != nil {
			return err
		}
		return yield(s.roads[opp])
	}) {
		return
	}
	if !s.sleep(seq, s.timing.Yellow) {
		return
	}

	if !s.apply(seq, PhaseAllRed, func() error {
		return toRed(s.roads[opp])
	}) {
		return
	}
	if !s.sleep(seq, s.timing.Clearance) {
		return
	}

	if !s.apply(seq, PhaseGreen, func() error {
		return s.roads[lane].Trigger(evGo)
	}) {
		return
	}

	if s.mode == ModeAuto {
		s.apply(seq, PhaseDerive, func() error {
			for i := range lanes {
				if err := s.derive(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	seq.logger.Debug("road switch complete")
}

func (s *Sequencer) runCrossing(seq *sequence) {
	head := s.crossings[seq.lane]

	if !s.apply(seq, PhaseWalk, func() error {
		return head.Trigger(evWalk)
	}) {
		return
	}
	if !s.sleep(seq, s.timing.Walk) {
		return
	}

	if s.timing.Flashing {
		if !s.apply(seq, PhaseFlash, func() error {
			return head.Trigger(evFlash)
		}) {
			return
		}
		if !s.sleep(seq, s.timing.Flash) {
			return
		}
	}

	if s.apply(seq, PhaseDontWalk, func() error {
		return head.Trigger(evStop)
	}) {
		seq.logger.Debug("crossing cycle complete")
	}
}

// apply runs one phase under the lock. It reports false when the sequence was
// cancelled or the phase was refused by a signal head; in both cases the
// sequence ends.
func (s *Sequencer) apply(seq *sequence, phase Phase, mutate func() error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if seq.ctx.Err() != nil {
		seq.logger.Debug("phase skipped, sequence cancelled", "phase", phase)
		return false
	}
	if err := mutate(); err != nil {
		seq.logger.Error("phase refused", "phase", phase, "err", err)
		s.publishLocked(phase, seq.id)
		return false
	}
	seq.logger.Debug("phase applied", "phase", phase)
	s.publishLocked(phase, seq.id)
	return true
}

func (s *Sequencer) sleep(seq *sequence, d time.Duration) bool {
	t := s.clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.Chan():
		return true
	case <-seq.ctx.Done():
		seq.logger.Debug("sequence cancelled while waiting")
		return false
	}
}

func (s *Sequencer) snapshotLocked(phase Phase, id string) Snapshot {
	snap := Snapshot{
		Seq:        s.last.Seq,
		Mode:       s.mode,
		Phase:      phase,
		SequenceID: id,
		At:         s.clock.Now(),
	}
	for i := range lanes {
		snap.Roads[i] = s.roads[i].GetCurrent()
		snap.Crossings[i] = s.crossings[i].GetCurrent()
	}
	return snap
}

func (s *Sequencer) publishLocked(phase Phase, id string) {
	snap := s.snapshotLocked(phase, id)
	snap.Seq++
	if err := snap.Validate(); err != nil {
		s.logger.Error("junction invariant violated", "err", err, "state", snap.String())
	}
	s.last = snap

	if err := deliver(s.notifier, snap); err != nil {
		s.logger.Error("notifier failed", "err", err, "seq", snap.Seq)
	}
}
