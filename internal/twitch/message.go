// Package twitch implements a client for the Twitch flavour of IRC chat.
//
// A Conn owns the transport and a background receive loop. Every inbound
// protocol line is parsed into a Message and handed to the handlers stored in
// the connection's Registry: first the catch-all handler, then the handler
// for the message's command.
package twitch

import (
	"strings"

	"github.com/ergochat/irc-go/ircmsg"
)

// MessageContext is the prefix/command/target part of a protocol line.
// Missing fields are empty strings.
type MessageContext struct {
	Sender   string
	Command  string
	Receiver string
}

// Message is one parsed protocol line. Tags holds the raw IRCv3 tag blob,
// e.g. "@badges=;color=#FF0000", use ParseTags for structured access.
type Message struct {
	Tags    string
	Context MessageContext
	Body    string
}

// Parse turns a raw line into a Message. It never fails: malformed input
// yields a Message with empty fields.
func Parse(line string) Message {
	line = strings.TrimRight(line, "\r\n")
	if strings.Trim(line, ":") == "" {
		return Message{}
	}

	parts := strings.SplitN(line, ":", 3)

	// Bare command lines such as "PING :tmi.twitch.tv"
	if len(parts) < 3 && !strings.HasPrefix(line, ":") {
		msg := Message{
			Context: MessageContext{
				Command:  strings.TrimSpace(parts[0]),
				Receiver: "*",
			},
		}
		if len(parts) > 1 {
			msg.Context.Sender = strings.TrimSpace(parts[1])
		}
		return msg
	}

	for len(parts) < 3 {
		parts = append(parts, "")
	}

	msg := Message{
		Tags: strings.TrimSpace(parts[0]),
		Body: parts[2],
	}

	fields := strings.Split(parts[1], " ")
	field := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	sender := field(0)
	if i := strings.IndexByte(sender, '!'); i >= 0 {
		sender = sender[:i]
	}
	msg.Context = MessageContext{
		Sender:   sender,
		Command:  field(1),
		Receiver: field(2),
	}
	return msg
}

// ParseTags decodes the tag blob into key/value pairs, unescaping values.
// It returns nil when the message carries no tags.
func (m Message) ParseTags() map[string]string {
	if !strings.HasPrefix(m.Tags, "@") {
		return nil
	}
	parsed, err := ircmsg.ParseLine(m.Tags + " TAGS")
	if err != nil {
		return nil
	}
	return parsed.AllTags()
}

// Tag returns a single tag value from the tag blob.
func (m Message) Tag(name string) (string, bool) {
	value, ok := m.ParseTags()[name]
	return value, ok
}
