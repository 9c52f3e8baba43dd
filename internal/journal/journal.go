// Package journal keeps a bounded in-memory log of operator requests and
// running request counters.
package journal

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const DefaultCapacity = 50

type Kind string

const (
	KindRoad      Kind = "road"
	KindCrossing  Kind = "crossing"
	KindEmergency Kind = "emergency"
)

type Entry struct {
	Time     time.Time
	Kind     Kind
	Detail   string
	Outcome  string
	Rejected bool
}

type Stats struct {
	Total     int
	Road      int
	Crossing  int
	Emergency int
	Rejected  int
	StartedAt time.Time
}

// Uptime is measured against now.
func (s Stats) Uptime(now time.Time) time.Duration {
	return now.Sub(s.StartedAt)
}

type Journal struct {
	clock    clockwork.Clock
	capacity int

	mu      sync.Mutex
	entries []Entry
	stats   Stats
}

// New returns a journal keeping at most capacity entries. A nil clock means
// the real clock; a capacity below 1 means DefaultCapacity.
func New(capacity int, clock clockwork.Clock) *Journal {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Journal{
		clock:    clock,
		capacity: capacity,
		entries:  make([]Entry, 0, capacity),
		stats:    Stats{StartedAt: clock.Now()},
	}
}

func (j *Journal) Record(kind Kind, detail, outcome string, rejected bool) Entry {
	e := Entry{
		Time:     j.clock.Now(),
		Kind:     kind,
		Detail:   detail,
		Outcome:  outcome,
		Rejected: rejected,
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.entries) == j.capacity {
		copy(j.entries, j.entries[1:])
		j.entries = j.entries[:len(j.entries)-1]
	}
	j.entries = append(j.entries, e)

	j.stats.Total++
	switch kind {
	case KindRoad:
		j.stats.Road++
	case KindCrossing:
		j.stats.Crossing++
	case KindEmergency:
		j.stats.Emergency++
	}
	if rejected {
		j.stats.Rejected++
	}
	return e
}

// Recent returns up to n entries, newest first. n < 1 returns all.
func (j *Journal) Recent(n int) []Entry {
	j.mu.Lock()
	defer j.mu.Unlock()

	if n < 1 || n > len(j.entries) {
		n = len(j.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(j.entries) - 1; i >= len(j.entries)-n; i-- {
		out = append(out, j.entries[i])
	}
	return out
}

func (j *Journal) Stats() Stats {
	j.mu.Lock()
	defer j.mu.Unlock()

	return j.stats
}

// Clear drops the log. Counters are kept.
func (j *Journal) Clear() int {
	j.mu.Lock()
	defer j.mu.Unlock()

	n := len(j.entries)
	j.entries = j.entries[:0]
	return n
}

func (j *Journal) Now() time.Time {
	return j.clock.Now()
}
