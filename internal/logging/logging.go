// Package logging wires the process-wide zerolog logger, following
// aristath-sentinel's internal/reliability convention of a base
// logger narrowed per-component with .With().Str(...).Logger().
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// New builds the base logger. component scopes every field emitted
// beneath it (e.g. "analysis", "alerts", "orchestrator").
func New(component string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}
