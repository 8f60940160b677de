package httpapi

import (
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns the process logger: JSON lines to w, or a human
// readable console format when pretty is set.
func NewLogger(w io.Writer, level string, pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.SetGlobalLevel(parseLevel(level))

	if pretty {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).With().Timestamp().Str("service", "mapviewer").Logger()
}

// parseLevel accepts zerolog's level names plus "warning". Unknown or
// empty values mean info.
func parseLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	if level == "warning" {
		level = "warn"
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}
