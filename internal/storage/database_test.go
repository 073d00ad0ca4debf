package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
)

func newTestStorage(t *testing.T) (*Storage, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chat.db")
	s, err := NewStorage(path, 10, time.Hour)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestWriteMessageSyncIsVisible(t *testing.T) {
	s, _ := newTestStorage(t)

	msg := Message{Channel: "#chan", Sender: "alice", Command: "PRIVMSG", Body: "hello", Tags: "@color=#FF0000", MessageType: MessageTypePrivmsg}
	if err := s.WriteMessageSync(msg); err != nil {
		t.Fatalf("WriteMessageSync: %v", err)
	}

	got, err := s.GetMessages("#chan", 10)
	if err != nil {
		t.Fatalf("GetMessages: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 message, got %d", len(got))
	}
	if got[0].Body != "hello" || got[0].Tags != "@color=#FF0000" || got[0].Timestamp.IsZero() {
		t.Errorf("unexpected message: %+v", got[0])
	}
}

func TestBufferedWritesFlushOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	s, err := NewStorage(path, 100, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		if err := s.WriteMessage(Message{Channel: "#c", Sender: "bob", Command: "PRIVMSG", Body: fmt.Sprintf("m%d", i), MessageType: MessageTypePrivmsg}); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.WriteMessage(Message{Channel: "#c"}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	reopened, err := NewStorage(path, 100, time.Hour)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.GetMessages("#c", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 || got[0].Body != "m0" || got[4].Body != "m4" {
		t.Errorf("unexpected messages after reopen: %+v", got)
	}
}

func TestCloseWaitsForLargeFinalFlush(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chat.db")
	s, err := NewStorage(path, 2000, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2000; i++ {
		if err := s.WriteMessage(Message{Channel: "#big", Sender: "bob", Command: "PRIVMSG", Body: fmt.Sprintf("m%d", i), MessageType: MessageTypePrivmsg}); err != nil {
			t.Fatalf("WriteMessage %d: %v", i, err)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewStorage(path, 1, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()
	got, err := reopened.GetMessages("#big", 5000)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2000 || got[1999].Body != "m1999" {
		t.Fatalf("expected the whole final batch, got %d rows", len(got))
	}
}

func TestBufferOverflowFlushes(t *testing.T) {
	s, _ := newTestStorage(t)
	for i := 0; i < 25; i++ {
		if err := s.WriteMessage(Message{Channel: "#busy", Sender: "x", Command: "PRIVMSG", Body: "spam", MessageType: MessageTypePrivmsg}); err != nil {
			t.Fatalf("WriteMessage %d: %v", i, err)
		}
	}
	// force the remainder out
	if err := s.WriteMessageSync(Message{Channel: "#busy", Sender: "x", Command: "PRIVMSG", Body: "last", MessageType: MessageTypePrivmsg}); err != nil {
		t.Fatal(err)
	}

	got, err := s.GetMessages("#busy", 100)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 26 || got[len(got)-1].Body != "last" {
		t.Errorf("expected 26 messages ending with last, got %d", len(got))
	}
}

func TestGetMessagesLimitKeepsNewest(t *testing.T) {
	s, _ := newTestStorage(t)
	for i := 0; i < 5; i++ {
		s.WriteMessageSync(Message{Channel: "#c", Sender: "a", Command: "PRIVMSG", Body: fmt.Sprintf("%d", i), MessageType: MessageTypePrivmsg})
	}

	got, err := s.GetMessages("#c", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Body != "3" || got[1].Body != "4" {
		t.Errorf("unexpected page: %+v", got)
	}
}

func TestGetWhispersAndStats(t *testing.T) {
	s, _ := newTestStorage(t)
	writes := []Message{
		{Channel: "#one", Sender: "a", Command: "PRIVMSG", Body: "1", MessageType: MessageTypePrivmsg},
		{Channel: "#two", Sender: "b", Command: "PRIVMSG", Body: "2", MessageType: MessageTypePrivmsg},
		{Channel: "#two", Sender: "c", Command: "PRIVMSG", Body: "3", MessageType: MessageTypePrivmsg},
		{Channel: "bot", Sender: "alice", Command: "WHISPER", Body: "psst", MessageType: MessageTypeWhisper},
	}
	for _, m := range writes {
		if err := s.WriteMessageSync(m); err != nil {
			t.Fatal(err)
		}
	}

	whispers, err := s.GetWhispers("alice", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(whispers) != 1 || whispers[0].Body != "psst" {
		t.Errorf("unexpected whispers: %+v", whispers)
	}

	stats, err := s.GetChannelStats()
	if err != nil {
		t.Fatal(err)
	}
	if len(stats) != 2 || stats[0].Channel != "#two" || stats[0].Messages != 2 || stats[1].Channel != "#one" {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if stats[0].LastSeen.IsZero() {
		t.Error("expected last_seen timestamp")
	}
}

func TestMigrateAddsTagsColumn(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")
	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	if _, err := db.Exec(createMessagesTable); err != nil {
		t.Fatal(err)
	}
	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// running twice must be harmless
	if err := Migrate(db); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}

	var count int
	if err := db.Get(&count, "SELECT COUNT(*) FROM pragma_table_info('messages') WHERE name='tags'"); err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Errorf("expected tags column, got count %d", count)
	}
}
