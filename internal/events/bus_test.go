package events

import (
	"sync"
	"testing"
)

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) OnEvent(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

type named struct {
	name  string
	order *[]string
}

func (n named) OnEvent(Event) { *n.order = append(*n.order, n.name) }

func TestEmitSyncOrder(t *testing.T) {
	bus := NewEventBus()
	var order []string
	bus.Subscribe("chat.message", named{"specific", &order})
	bus.Subscribe(Wildcard, named{"wildcard", &order})

	bus.EmitSync(Event{Type: "chat.message", Source: EventSourceTwitch})

	if len(order) != 2 || order[0] != "specific" || order[1] != "wildcard" {
		t.Fatalf("unexpected delivery order: %v", order)
	}
}

func TestEmitAsyncAndWait(t *testing.T) {
	bus := NewEventBus()
	rec := &recorder{}
	bus.Subscribe("connection.lost", rec)

	for i := 0; i < 10; i++ {
		bus.Emit(Event{Type: "connection.lost", Source: EventSourceSystem})
	}
	bus.Emit(Event{Type: "other"})
	bus.Wait()

	if got := rec.count(); got != 10 {
		t.Errorf("expected 10 events, got %d", got)
	}
	if rec.events[0].Timestamp.IsZero() {
		t.Error("expected Emit to stamp the event")
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()
	rec := &recorder{}
	bus.Subscribe("x", rec)
	bus.Unsubscribe("x", rec)
	bus.EmitSync(Event{Type: "x"})

	if rec.count() != 0 {
		t.Error("unsubscribed recorder still received events")
	}
}

func TestEventString(t *testing.T) {
	e := Event{Data: map[string]interface{}{"channel": "#a", "n": 1}}
	if e.String("channel") != "#a" {
		t.Error("expected channel value")
	}
	if e.String("n") != "" || e.String("missing") != "" {
		t.Error("expected empty string for non-string and missing keys")
	}
}
