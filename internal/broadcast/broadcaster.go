// Package broadcast fans events out to live subscribers. Delivery is
// fire-and-forget: a subscriber that is gone or too slow silently misses
// the event, with no queued replay and no retry.
package broadcast

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/consultly/chat-service/internal/metrics"
)

// EventType names the event kinds carried over the realtime transport.
type EventType string

const (
	EventNewMessage   EventType = "new-message"
	EventTyping       EventType = "user-typing"
	EventStopTyping   EventType = "user-stop-typing"
	EventStatusChange EventType = "user-status-change"
)

// Event is a single fan-out payload. RoomID is empty for global events.
type Event struct {
	Type    EventType   `json:"type"`
	RoomID  string      `json:"roomId,omitempty"`
	Payload interface{} `json:"payload"`
}

// TypingPayload accompanies typing and stop-typing events. It is
// ephemeral: never stored, never replayed to late joiners.
type TypingPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// StatusPayload accompanies user-status-change events.
type StatusPayload struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	IsOnline bool   `json:"isOnline"`
}

// subBuffer is the per-subscription channel depth. A subscriber that
// falls this far behind starts losing events.
const subBuffer = 32

// Subscription is one connection's event feed for a room (or for the
// global presence stream). Receive from C; the broadcaster closes it on
// unsubscribe.
type Subscription struct {
	ConnID string
	C      <-chan Event
	ch     chan Event
}

type subSet struct {
	mu   sync.Mutex
	subs map[string]*Subscription // connID -> subscription
}

func newSubSet() *subSet {
	return &subSet{subs: make(map[string]*Subscription)}
}

// add registers a subscription for connID, replacing (and closing) any
// previous one for the same connection.
func (ss *subSet) add(connID string) *Subscription {
	sub := &Subscription{ConnID: connID, ch: make(chan Event, subBuffer)}
	sub.C = sub.ch

	ss.mu.Lock()
	defer ss.mu.Unlock()
	if prev, ok := ss.subs[connID]; ok {
		close(prev.ch)
	}
	ss.subs[connID] = sub
	return sub
}

func (ss *subSet) remove(connID string) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	if sub, ok := ss.subs[connID]; ok {
		delete(ss.subs, connID)
		close(sub.ch)
	}
}

// send delivers ev to every subscription except originConnID. Holding
// the set lock serializes sends, so all subscribers of one room observe
// events in publish order. Returns how many deliveries were dropped.
func (ss *subSet) send(ev Event, originConnID string) int {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	dropped := 0
	for connID, sub := range ss.subs {
		if connID == originConnID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			dropped++
		}
	}
	return dropped
}

// Broadcaster routes events to room subscribers and, for presence
// changes, to every connection regardless of room.
type Broadcaster struct {
	mu     sync.RWMutex
	rooms  map[string]*subSet
	global *subSet
	logger zerolog.Logger
	closed bool
}

// New creates a Broadcaster.
func New(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		rooms:  make(map[string]*subSet),
		global: newSubSet(),
		logger: logger,
	}
}

// Subscribe attaches connID to roomID's event feed.
func (b *Broadcaster) Subscribe(roomID, connID string) *Subscription {
	b.mu.Lock()
	ss, ok := b.rooms[roomID]
	if !ok {
		ss = newSubSet()
		b.rooms[roomID] = ss
	}
	b.mu.Unlock()
	return ss.add(connID)
}

// Unsubscribe detaches connID from roomID and closes its channel.
func (b *Broadcaster) Unsubscribe(roomID, connID string) {
	b.mu.RLock()
	ss, ok := b.rooms[roomID]
	b.mu.RUnlock()
	if ok {
		ss.remove(connID)
	}
}

// SubscribeGlobal attaches connID to the global presence stream.
func (b *Broadcaster) SubscribeGlobal(connID string) *Subscription {
	return b.global.add(connID)
}

// UnsubscribeGlobal detaches connID from the global stream.
func (b *Broadcaster) UnsubscribeGlobal(connID string) {
	b.global.remove(connID)
}

// Publish fans ev out to every live subscriber of roomID except the
// originating connection. Pass an empty origin to reach everyone.
func (b *Broadcaster) Publish(roomID string, ev Event, originConnID string) {
	ev.RoomID = roomID

	b.mu.RLock()
	ss, ok := b.rooms[roomID]
	b.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
	if !ok {
		// No live subscriber at all. Informational, never an error.
		return
	}

	if dropped := ss.send(ev, originConnID); dropped > 0 {
		metrics.EventsDropped.WithLabelValues(string(ev.Type)).Add(float64(dropped))
		b.logger.Debug().
			Str("room_id", roomID).
			Str("event", string(ev.Type)).
			Int("dropped", dropped).
			Msg("slow subscribers missed event")
	}
}

// PublishGlobal fans ev out to every connection except the origin.
// Used for presence changes, which are not scoped to a room.
func (b *Broadcaster) PublishGlobal(ev Event, originConnID string) {
	metrics.EventsPublished.WithLabelValues(string(ev.Type)).Inc()
	if dropped := b.global.send(ev, originConnID); dropped > 0 {
		metrics.EventsDropped.WithLabelValues(string(ev.Type)).Add(float64(dropped))
	}
}

// Close tears down every subscription. Publishing after Close is a no-op
// for the closed feeds.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true

	for _, ss := range b.rooms {
		ss.mu.Lock()
		for connID, sub := range ss.subs {
			delete(ss.subs, connID)
			close(sub.ch)
		}
		ss.mu.Unlock()
	}
	b.global.mu.Lock()
	for connID, sub := range b.global.subs {
		delete(b.global.subs, connID)
		close(sub.ch)
	}
	b.global.mu.Unlock()
}
