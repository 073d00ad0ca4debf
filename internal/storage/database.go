package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/matt0x6f/twitch-chat/internal/constants"
	"github.com/matt0x6f/twitch-chat/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

// ErrClosed is returned by writes after Close
var ErrClosed = errors.New("storage is closed")

const insertMessage = `INSERT INTO messages (channel, sender, command, body, tags, message_type, timestamp)
          VALUES (:channel, :sender, :command, :body, :tags, :message_type, :timestamp)`

// Storage is the SQLite chat log. Writes are buffered and flushed in batches.
type Storage struct {
	db            *sqlx.DB
	writeBuffer   chan Message
	bufferSize    int
	flushInterval time.Duration
	mu            sync.Mutex // serializes flushes
	stopCh        chan struct{}
	wg            sync.WaitGroup
	closed        bool
	closedMu      sync.RWMutex
}

// NewStorage opens (creating if needed) the chat log at dbPath
func NewStorage(dbPath string, bufferSize int, flushInterval time.Duration) (*Storage, error) {
	// Enable WAL mode for better concurrent writes
	db, err := sqlx.Connect("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite works best with a single connection in WAL mode
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	if err := Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	storage := &Storage{
		db:            db,
		writeBuffer:   make(chan Message, bufferSize),
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		stopCh:        make(chan struct{}),
	}

	storage.wg.Add(1)
	go storage.flushLoop()

	return storage, nil
}

// Close flushes buffered messages and closes the database
func (s *Storage) Close() error {
	s.closedMu.Lock()
	if s.closed {
		s.closedMu.Unlock()
		return nil
	}
	s.closed = true
	s.closedMu.Unlock()

	close(s.stopCh)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(constants.ShutdownTimeout):
		logger.Log.Warn().Dur("timeout", constants.ShutdownTimeout).Msg("Final flush still running, closing database anyway")
	}

	return s.db.Close()
}

func (s *Storage) isClosed() bool {
	s.closedMu.RLock()
	defer s.closedMu.RUnlock()
	return s.closed
}

// flushLoop periodically flushes the write buffer
func (s *Storage) flushLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			// Final flush before the database closes
			s.flushBuffer()
			return
		case <-ticker.C:
			s.flushBuffer()
		}
	}
}

// flushBuffer writes every buffered message in one batch
func (s *Storage) flushBuffer() {
	s.mu.Lock()
	defer s.mu.Unlock()

	messages := make([]Message, 0, s.bufferSize)
drain:
	for {
		select {
		case msg := <-s.writeBuffer:
			messages = append(messages, msg)
		default:
			break drain
		}
	}
	if len(messages) == 0 {
		return
	}

	if _, err := s.db.NamedExec(insertMessage, messages); err != nil {
		logger.Log.Error().Err(err).Int("count", len(messages)).Msg("Error flushing messages")
	}
}

func stamp(msg Message) Message {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	return msg
}

// WriteMessage queues a message for batch insertion
func (s *Storage) WriteMessage(msg Message) error {
	if s.isClosed() {
		return ErrClosed
	}
	msg = stamp(msg)

	select {
	case s.writeBuffer <- msg:
		return nil
	default:
		// Buffer full, flush immediately
		s.flushBuffer()
		select {
		case s.writeBuffer <- msg:
			return nil
		default:
			return fmt.Errorf("write buffer full and flush failed")
		}
	}
}

// WriteMessageSync flushes the buffer and writes msg immediately, so it is
// visible to the next read
func (s *Storage) WriteMessageSync(msg Message) error {
	if s.isClosed() {
		return ErrClosed
	}
	msg = stamp(msg)

	s.flushBuffer()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.NamedExec(insertMessage, msg); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}
	return nil
}

const selectMessages = `SELECT id, channel, sender, command, body, tags, message_type, timestamp FROM messages`

// newestFirst runs query and returns the rows reversed into chronological order
func (s *Storage) newestFirst(query string, args ...interface{}) ([]Message, error) {
	var messages []Message
	if err := s.db.Select(&messages, query, args...); err != nil {
		return nil, err
	}
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}
	return messages, nil
}

// GetMessages returns the newest messages for a channel, oldest first
func (s *Storage) GetMessages(channel string, limit int) ([]Message, error) {
	messages, err := s.newestFirst(selectMessages+` WHERE channel = ? ORDER BY id DESC LIMIT ?`, channel, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get messages: %w", err)
	}
	return messages, nil
}

// GetWhispers returns the newest whispers from sender, oldest first
func (s *Storage) GetWhispers(sender string, limit int) ([]Message, error) {
	messages, err := s.newestFirst(selectMessages+` WHERE message_type = ? AND sender = ? ORDER BY id DESC LIMIT ?`,
		MessageTypeWhisper, sender, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get whispers: %w", err)
	}
	return messages, nil
}

// GetChannelStats returns chat message counts per channel, busiest first
func (s *Storage) GetChannelStats() ([]ChannelStats, error) {
	var stats []ChannelStats
	query := `SELECT m.channel, c.messages, m.timestamp AS last_seen
	          FROM messages m
	          JOIN (SELECT channel, COUNT(*) AS messages, MAX(id) AS last_id
	                FROM messages WHERE message_type = ? GROUP BY channel) c ON m.id = c.last_id
	          ORDER BY c.messages DESC, m.channel ASC`
	if err := s.db.Select(&stats, query, MessageTypePrivmsg); err != nil {
		return nil, fmt.Errorf("failed to get channel stats: %w", err)
	}
	return stats, nil
}
