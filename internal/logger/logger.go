package logger

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var Log zerolog.Logger

func init() {
	// Console output with colors for interactive runs
	Log = New(os.Stderr)

	// Set default log level to Info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// New builds a console logger writing to out
func New(out io.Writer) zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    false,
		TimeFormat: time.RFC3339,
	}).With().Timestamp().Logger()
}

// SetLevel sets the global log level
func SetLevel(level zerolog.Level) {
	zerolog.SetGlobalLevel(level)
}

// SetLevelString parses a level name such as "debug" or "warn" and applies it.
// An empty name keeps the current level.
func SetLevelString(name string) error {
	if name == "" {
		return nil
	}
	level, err := zerolog.ParseLevel(name)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", name, err)
	}
	SetLevel(level)
	return nil
}
