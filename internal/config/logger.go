package config

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger returns a zerolog logger writing to w, or stderr when w is nil.
// Dev environments get the human-readable console writer; everything else
// logs JSON. An unknown level falls back to info.
func NewLogger(c Config, w io.Writer) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if c.IsDev() {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	}
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Str("env", c.Env).Logger()
}
