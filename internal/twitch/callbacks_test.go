package twitch

import (
	"sync"
	"testing"
)

func TestRegistryReplaceAndUnregister(t *testing.T) {
	r := NewRegistry()
	var calls []string
	r.Register(KindPing, func(*Conn, Message) { calls = append(calls, "first") })
	r.Register(KindPing, func(*Conn, Message) { calls = append(calls, "second") })

	ping := Message{Context: MessageContext{Command: "PING"}}
	plan := r.handlersFor(ping)
	if len(plan) != 1 {
		t.Fatalf("expected one ping handler, got %+v", plan)
	}
	plan[0].handler(nil, ping)
	if len(calls) != 1 || calls[0] != "second" {
		t.Errorf("expected replaced handler to run, got %v", calls)
	}

	r.Unregister(KindPing)
	if plan := r.handlersFor(ping); len(plan) != 0 {
		t.Error("expected ping handler to be removed")
	}
}

func TestHandlersForOrder(t *testing.T) {
	r := NewRegistry()
	noop := func(*Conn, Message) {}
	r.Register(KindAny, noop)
	r.Register(KindPrivateMessage, noop)
	r.Register(KindWhisper, noop)

	got := r.handlersFor(Message{Context: MessageContext{Command: "PRIVMSG"}})
	if len(got) != 2 || got[0].kind != KindAny || got[1].kind != KindPrivateMessage {
		t.Fatalf("unexpected dispatch plan: %+v", got)
	}

	got = r.handlersFor(Message{Context: MessageContext{Command: "JOIN"}})
	if len(got) != 1 || got[0].kind != KindAny {
		t.Fatalf("JOIN should only reach the catch-all handler: %+v", got)
	}

	r.Unregister(KindAny)
	if got := r.handlersFor(Message{Context: MessageContext{Command: "NOTICE"}}); len(got) != 0 {
		t.Fatalf("expected no handlers, got %+v", got)
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register(KindWhisper, func(*Conn, Message) {})
		}()
		go func() {
			defer wg.Done()
			r.handlersFor(Message{Context: MessageContext{Command: "WHISPER"}})
		}()
	}
	wg.Wait()
	if plan := r.handlersFor(Message{Context: MessageContext{Command: "WHISPER"}}); len(plan) != 1 {
		t.Error("expected whisper handler after concurrent registration")
	}
}
