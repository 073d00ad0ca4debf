package events

import (
	"sync"
	"time"
)

// EventSource represents the source of an event
type EventSource string

const (
	EventSourceTwitch EventSource = "twitch"
	EventSourceSystem EventSource = "system"
)

// Wildcard subscribes to every event type
const Wildcard = "*"

// Event represents a generic event
type Event struct {
	Type      string
	Data      map[string]interface{}
	Timestamp time.Time
	Source    EventSource
}

// String returns Data[key] as a string, or "" when absent.
func (e Event) String(key string) string {
	s, _ := e.Data[key].(string)
	return s
}

// Subscriber is an interface for event subscribers
type Subscriber interface {
	OnEvent(event Event)
}

// EventBus manages event routing
type EventBus struct {
	subscribers map[string][]Subscriber
	mu          sync.RWMutex
	pending     sync.WaitGroup
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[string][]Subscriber),
	}
}

// Subscribe subscribes a subscriber to a specific event type
func (eb *EventBus) Subscribe(eventType string, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// Unsubscribe removes a subscriber from an event type.
// Subscribers must be comparable.
func (eb *EventBus) Unsubscribe(eventType string, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs := eb.subscribers[eventType]
	for i, sub := range subs {
		if sub == subscriber {
			eb.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
}

// targets snapshots the specific subscribers followed by the wildcard ones
func (eb *EventBus) targets(eventType string) []Subscriber {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	subs := make([]Subscriber, 0, len(eb.subscribers[eventType])+len(eb.subscribers[Wildcard]))
	subs = append(subs, eb.subscribers[eventType]...)
	if eventType != Wildcard {
		subs = append(subs, eb.subscribers[Wildcard]...)
	}
	return subs
}

// Emit delivers the event to each subscriber on its own goroutine
func (eb *EventBus) Emit(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, sub := range eb.targets(event.Type) {
		eb.pending.Add(1)
		go func(s Subscriber) {
			defer eb.pending.Done()
			s.OnEvent(event)
		}(sub)
	}
}

// EmitSync emits an event synchronously (for testing or when order matters)
func (eb *EventBus) EmitSync(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, sub := range eb.targets(event.Type) {
		sub.OnEvent(event)
	}
}

// Wait blocks until every asynchronous delivery started by Emit has returned
func (eb *EventBus) Wait() {
	eb.pending.Wait()
}
