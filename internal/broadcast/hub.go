// Package broadcast fans junction snapshots out to any number of watchers.
package broadcast

import (
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/luckyComet55/junction-control/internal/junction"
)

// Hub is a junction.Notifier. Publishing never blocks: a subscriber whose
// buffer is full misses that snapshot.
type Hub struct {
	logger *slog.Logger

	mu          sync.RWMutex
	subscribers map[uint64]chan junction.Snapshot
	nextID      uint64
	dropped     atomic.Uint64
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:      logger,
		subscribers: make(map[uint64]chan junction.Snapshot),
	}
}

// Subscribe registers a watcher with the given buffer size. The returned
// cancel func unregisters it and closes the channel; it is safe to call twice.
func (h *Hub) Subscribe(buffer int) (<-chan junction.Snapshot, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan junction.Snapshot, buffer)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subscribers[id] = ch
	h.mu.Unlock()

	h.logger.Debug("watcher subscribed", "watcher", id)

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subscribers, id)
			h.mu.Unlock()
			close(ch)
			h.logger.Debug("watcher unsubscribed", "watcher", id)
		})
	}
}

func (h *Hub) OnStateChange(snapshot junction.Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for id, ch := range h.subscribers {
		select {
		case ch <- snapshot:
		default:
			h.dropped.Add(1)
			h.logger.Warn("watcher too slow, snapshot dropped", "watcher", id, "seq", snapshot.Seq)
		}
	}
}

func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.subscribers)
}

// Dropped is the total number of snapshots not delivered to full watchers.
func (h *Hub) Dropped() uint64 {
	return h.dropped.Load()
}
