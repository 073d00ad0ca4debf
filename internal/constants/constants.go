package constants

import "time"

// Connection timing constants
const (
	// DefaultKeepAliveInterval is the heartbeat interval when the config leaves it unset
	DefaultKeepAliveInterval = 60 * time.Second

	// ReconnectInitialDelay is the first wait before reopening a lost connection
	ReconnectInitialDelay = 1 * time.Second

	// ReconnectMaxDelay caps the exponential backoff between reconnect attempts
	ReconnectMaxDelay = 2 * time.Minute

	// ShutdownTimeout bounds how long shutdown waits for background tasks
	ShutdownTimeout = 5 * time.Second
)

// Chat log timing constants
const (
	// LogBufferSize is the number of chat messages buffered before a forced flush
	LogBufferSize = 100

	// LogFlushInterval is how often buffered chat messages are written
	LogFlushInterval = 5 * time.Second
)
