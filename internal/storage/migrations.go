package storage

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Migrate runs all database migrations
func Migrate(db *sqlx.DB) error {
	migrations := []string{
		createMessagesTable,
		createIndexes,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	// Logs created before tags were recorded lack the column
	if err := migrateTagsColumn(db); err != nil {
		return fmt.Errorf("tags migration failed: %w", err)
	}

	return nil
}

const createMessagesTable = `
CREATE TABLE IF NOT EXISTS messages (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    channel TEXT NOT NULL,
    sender TEXT NOT NULL,
    command TEXT NOT NULL,
    body TEXT NOT NULL,
    message_type TEXT NOT NULL DEFAULT 'privmsg',
    timestamp TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_messages_channel_time ON messages(channel, timestamp);
CREATE INDEX IF NOT EXISTS idx_messages_type_sender ON messages(message_type, sender);
`

// migrateTagsColumn adds the tags column to messages if it doesn't exist
func migrateTagsColumn(db *sqlx.DB) error {
	var columnExists int
	err := db.Get(&columnExists,
		"SELECT COUNT(*) FROM pragma_table_info('messages') WHERE name='tags'")
	if err != nil {
		return fmt.Errorf("failed to check for tags column: %w", err)
	}

	if columnExists == 0 {
		if _, err := db.Exec("ALTER TABLE messages ADD COLUMN tags TEXT NOT NULL DEFAULT ''"); err != nil {
			return fmt.Errorf("failed to add tags column: %w", err)
		}
	}

	return nil
}
