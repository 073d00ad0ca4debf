package twitch

import "sync"

// EventKind selects which registry slot a handler occupies.
type EventKind int

const (
	// KindAny receives every message before its command-specific handler.
	KindAny EventKind = iota
	KindPing
	KindPrivateMessage
	KindWhisper
)

func (k EventKind) String() string {
	switch k {
	case KindAny:
		return "any"
	case KindPing:
		return "ping"
	case KindPrivateMessage:
		return "privmsg"
	case KindWhisper:
		return "whisper"
	}
	return "unknown"
}

// kindForCommand maps a protocol command to its specific handler slot.
func kindForCommand(command string) (EventKind, bool) {
	switch command {
	case "PING":
		return KindPing, true
	case "PRIVMSG":
		return KindPrivateMessage, true
	case "WHISPER":
		return KindWhisper, true
	}
	return 0, false
}

// Handler is invoked on the receive loop. The Conn is the live connection
// the message arrived on, so sends from a handler reach the real socket.
type Handler func(c *Conn, msg Message)

// Registry holds at most one Handler per EventKind.
type Registry struct {
	mu       sync.Mutex
	handlers map[EventKind]Handler
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[EventKind]Handler)}
}

// Register stores h for kind, replacing any previous handler.
// A nil handler clears the slot.
func (r *Registry) Register(kind EventKind, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if h == nil {
		delete(r.handlers, kind)
		return
	}
	r.handlers[kind] = h
}

// Unregister removes the handler for kind, if any.
func (r *Registry) Unregister(kind EventKind) {
	r.Register(kind, nil)
}

// handlersFor returns the catch-all and command handlers for msg, in
// dispatch order. The lock is released before any handler runs.
func (r *Registry) handlersFor(msg Message) []dispatch {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []dispatch
	if h, ok := r.handlers[KindAny]; ok {
		out = append(out, dispatch{KindAny, h})
	}
	if kind, ok := kindForCommand(msg.Context.Command); ok {
		if h, ok := r.handlers[kind]; ok {
			out = append(out, dispatch{kind, h})
		}
	}
	return out
}

type dispatch struct {
	kind    EventKind
	handler Handler
}
