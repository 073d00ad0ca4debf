package twitch

import (
	"time"

	"github.com/matt0x6f/twitch-chat/internal/events"
)

// Event types published on the application bus
const (
	EventMessageReceived       = "message.received"
	EventMessageSent           = "message.sent"
	EventWhisperReceived       = "whisper.received"
	EventConnectionEstablished = "connection.established"
	EventConnectionLost        = "connection.lost"
	EventError                 = "error"
)

// MessageEvent wraps a received message for the event bus. The event type is
// EventWhisperReceived for whispers and EventMessageReceived otherwise.
func MessageEvent(msg Message) events.Event {
	eventType := EventMessageReceived
	if msg.Context.Command == "WHISPER" {
		eventType = EventWhisperReceived
	}
	return events.Event{
		Type: eventType,
		Data: map[string]interface{}{
			"tags":     msg.Tags,
			"sender":   msg.Context.Sender,
			"command":  msg.Context.Command,
			"receiver": msg.Context.Receiver,
			"body":     msg.Body,
		},
		Timestamp: time.Now(),
		Source:    events.EventSourceTwitch,
	}
}

// MessageFromEvent rebuilds the Message carried by MessageEvent.
func MessageFromEvent(e events.Event) Message {
	return Message{
		Tags: e.String("tags"),
		Context: MessageContext{
			Sender:   e.String("sender"),
			Command:  e.String("command"),
			Receiver: e.String("receiver"),
		},
		Body: e.String("body"),
	}
}
