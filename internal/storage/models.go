package storage

import "time"

// Message types stored in the chat log
const (
	MessageTypePrivmsg = "privmsg"
	MessageTypeWhisper = "whisper"
	MessageTypeSent    = "sent"
	MessageTypeStatus  = "status"
)

// Message represents one logged chat line
type Message struct {
	ID          int64     `db:"id" json:"id"`
	Channel     string    `db:"channel" json:"channel"` // Receiver: "#channel" or our nick for whispers, "*" for status
	Sender      string    `db:"sender" json:"sender"`
	Command     string    `db:"command" json:"command"`
	Body        string    `db:"body" json:"body"`
	Tags        string    `db:"tags" json:"tags"` // Raw IRCv3 tag blob
	MessageType string    `db:"message_type" json:"message_type"`
	Timestamp   time.Time `db:"timestamp" json:"timestamp"`
}

// ChannelStats summarizes the log for one channel
type ChannelStats struct {
	Channel  string    `db:"channel" json:"channel"`
	Messages int64     `db:"messages" json:"messages"`
	LastSeen time.Time `db:"last_seen" json:"last_seen"`
}
