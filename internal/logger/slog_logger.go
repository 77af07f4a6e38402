package logger

import (
	"io"
	"log/slog"
	"os"
	"time"
)

// NewSlogLogger creates a standalone Logger that writes text records to
// writer. A nil writer means stderr and a nil tz means local time.
// It is mainly used in tests and for early startup before configuration loads.
func NewSlogLogger(writer io.Writer, level LogLevel, tz *time.Location) Logger {
	if writer == nil {
		writer = os.Stderr
	}
	if tz == nil {
		tz = time.Local
	}
	slogLevel := parseSlogLevel(level)
	return &moduleLogger{
		logger:   slog.New(newTextHandler(writer, slogLevel, tz)),
		level:    slogLevel,
		timezone: tz,
	}
}

// NewDiscardLogger returns a Logger that drops every record.
func NewDiscardLogger() Logger {
	return NewSlogLogger(io.Discard, LogLevelError, time.UTC)
}
