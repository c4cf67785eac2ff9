package router

import (
	"log/slog"
	"sync"
	"time"
)

// EventType names one observable task event.
type EventType string

const (
	EventReady     EventType = "READY"
	EventQueued    EventType = "QUEUED"
	EventRouted    EventType = "ROUTED"
	EventStream    EventType = "STREAM"
	EventComplete  EventType = "COMPLETE"
	EventPreempted EventType = "PREEMPTED"
	EventCancelled EventType = "CANCELLED"
	EventDropped   EventType = "DROPPED"
	EventError     EventType = "ERROR"
	EventStatus    EventType = "STATUS"
)

// Drop reasons.
const (
	ReasonQueueOverflow = "QueueOverflow"
	ReasonQueueCleared  = "QueueCleared"
)

// Event is one entry of the task event stream. Fields beyond Type and
// TaskID are populated per event type.
type Event struct {
	Type      EventType `json:"type"`
	TaskID    string    `json:"taskId,omitempty"`
	Timestamp int64     `json:"timestamp"`

	Position   int       `json:"position,omitempty"`   // QUEUED
	Route      Route     `json:"route,omitempty"`      // ROUTED
	Complexity int       `json:"complexity,omitempty"` // ROUTED
	Priority   string    `json:"priority,omitempty"`   // ROUTED
	Realtime   bool      `json:"realtime,omitempty"`   // ROUTED
	Privacy    bool      `json:"privacy,omitempty"`    // ROUTED
	Token      string    `json:"token,omitempty"`      // STREAM
	Response   string    `json:"response,omitempty"`   // COMPLETE
	Reason     string    `json:"reason,omitempty"`     // DROPPED
	Error      string    `json:"error,omitempty"`      // ERROR
	Status     *Snapshot `json:"status,omitempty"`     // STATUS
}

const subscriberBuffer = 1024

// Bus fans task events out to subscribers. Publishing never blocks the
// scheduler: a subscriber that stops draining loses events.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]chan Event
	next int
}

// NewBus creates an event bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber. The returned cancel function
// unregisters it and closes the channel.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, subscriberBuffer)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers an event to every subscriber.
func (b *Bus) Publish(ev Event) {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().UnixMilli()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub <- ev:
		default:
			slog.Warn("event subscriber overflow, dropping event", "type", ev.Type, "task", ev.TaskID)
		}
	}
}
