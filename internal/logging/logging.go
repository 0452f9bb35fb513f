// Package logging configures the process-wide structured logger.
// Every component logs through zerolog with a "component" field set
// via With(), rather than the bare log.Println the teacher uses.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Init configures the global zerolog logger from a level string
// ("debug", "info", "warn", "error"; defaults to "info") and whether
// to emit human-readable console output instead of JSON.
func Init(level string, pretty bool) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	var out io.Writer = os.Stderr
	if pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(out).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	return logger
}

// For returns a child logger tagged with a component name, the
// convention every package below uses for its own logger.
func For(base zerolog.Logger, component string) zerolog.Logger {
	return base.With().Str("component", component).Logger()
}
