package hub

import (
	"sync"
	"sync/atomic"

	"github.com/DracoZBA/Watana/internal/models"
	"github.com/DracoZBA/Watana/pkg/logging"
)

// EventType discriminates what an Event carries.
type EventType string

const (
	EventReading      EventType = "reading"
	EventNotification EventType = "notification"
)

// Event is the unit fanned out to subscribers. Exactly one of Reading or
// Notification is set, according to Type.
type Event struct {
	Type         EventType
	Reading      *models.Reading
	Notification *models.Notification
}

// Subscriber is a registered consumer of broadcast events. Events are
// delivered through C; the hub closes C exactly once, on unsubscribe or
// hub shutdown.
type Subscriber struct {
	C chan Event

	id      uint64
	dropped atomic.Uint64
}

// Dropped reports how many events this subscriber has lost to buffer
// overflow so far.
func (s *Subscriber) Dropped() uint64 {
	return s.dropped.Load()
}

// Stats is a point-in-time snapshot of hub state.
type Stats struct {
	Subscribers  int
	Published    uint64
	TotalDropped uint64
}

const defaultBufferSize = 64

// Hub fans events out to subscribers with bounded per-subscriber buffers.
// A subscriber that falls behind loses its oldest pending events; it never
// blocks the publisher or its peers.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[uint64]*Subscriber
	nextID      uint64
	bufferSize  int
	closed      bool

	published    atomic.Uint64
	totalDropped atomic.Uint64

	logger logging.Logger
}

func New(logger logging.Logger, bufferSize int) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	return &Hub{
		subscribers: make(map[uint64]*Subscriber),
		bufferSize:  bufferSize,
		logger:      logger,
	}
}

// Subscribe registers a new consumer. The subscriber only receives events
// published after this call returns; there is no replay.
func (h *Hub) Subscribe() *Subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()

	sub := &Subscriber{
		C:  make(chan Event, h.bufferSize),
		id: h.nextID,
	}
	h.nextID++

	if h.closed {
		close(sub.C)
		return sub
	}

	h.subscribers[sub.id] = sub
	return sub
}

// Unsubscribe removes a consumer and closes its channel. Safe to call more
// than once for the same subscriber.
func (h *Hub) Unsubscribe(sub *Subscriber) {
	if sub == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.subscribers[sub.id]; !ok {
		return
	}
	delete(h.subscribers, sub.id)
	h.totalDropped.Add(sub.dropped.Load())
	close(sub.C)
}

// Publish delivers an event to every current subscriber. When a subscriber's
// buffer is full its oldest pending event is discarded to make room, so a
// slow consumer degrades alone.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	h.published.Add(1)

	for _, sub := range h.subscribers {
		select {
		case sub.C <- event:
			continue
		default:
		}

		// Buffer full: evict the oldest event, then retry once. The retry
		// can still lose the race against a concurrent drain, in which case
		// this event is counted dropped instead.
		select {
		case <-sub.C:
			sub.dropped.Add(1)
		default:
		}
		select {
		case sub.C <- event:
		default:
			sub.dropped.Add(1)
		}
	}
}

// Close shuts the hub down, closing every subscriber channel. Publish and
// Subscribe become no-ops afterwards.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true

	for id, sub := range h.subscribers {
		delete(h.subscribers, id)
		h.totalDropped.Add(sub.dropped.Load())
		close(sub.C)
	}

	if h.logger != nil {
		h.logger.WithField("total_dropped", h.totalDropped.Load()).Info("Broadcast hub closed")
	}
}

// Stats returns current counters. Dropped counts from live subscribers are
// included.
func (h *Hub) Stats() Stats {
	h.mu.RLock()
	defer h.mu.RUnlock()

	dropped := h.totalDropped.Load()
	for _, sub := range h.subscribers {
		dropped += sub.dropped.Load()
	}
	return Stats{
		Subscribers:  len(h.subscribers),
		Published:    h.published.Load(),
		TotalDropped: dropped,
	}
}
