package internal

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger writes human-readable records to stderr and, when a path is
// given, a colorless copy to that file.
type Logger struct {
	zerolog.Logger
	f *os.File
}

func NewLogger(path string, verbose bool) (*Logger, error) {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	writers := []io.Writer{zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}}

	var f *os.File
	if path != "" {
		var err error
		f, err = os.Create(path)
		if err != nil {
			return nil, err
		}
		writers = append(writers, zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339, NoColor: true})
	}

	zl := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().Timestamp().Logger()

	return &Logger{Logger: zl, f: f}, nil
}

func (l *Logger) Close() error {
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}
