// Package live fans dialog events out to admin dashboard subscribers.
package live

import (
	"sync"
	"time"
)

type EventType string

const (
	EventCallStarted EventType = "call_started"
	EventTranscript  EventType = "transcript"
	EventSuspicious  EventType = "suspicious"
	EventCallStatus  EventType = "call_status"
)

type Event struct {
	Type      EventType `json:"type"`
	CallID    string    `json:"call_sid"`
	Role      string    `json:"role,omitempty"`
	Message   string    `json:"message,omitempty"`
	Status    string    `json:"status,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher is the write side used by the dialog engine.
type Publisher interface {
	Publish(ev Event)
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(Event) {}

const subscriberBuffer = 64

// Hub is an in-process broadcaster. Slow subscribers lose events rather than
// block publishers.
type Hub struct {
	mu      sync.Mutex
	subs    map[chan Event]struct{}
	dropped int
}

func NewHub() *Hub {
	return &Hub{subs: make(map[chan Event]struct{})}
}

func (h *Hub) Publish(ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped++
		}
	}
}

// Subscribe registers a listener. The returned cancel func closes the channel.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Subscribers returns the number of live listeners.
func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Dropped returns how many events were skipped for full subscribers.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
