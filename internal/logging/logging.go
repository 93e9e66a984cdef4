package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

/*
Every process (orchestrator, fetcher, parser) gets its own zerolog
Logger carrying process_type/process_id fields, matching the
component-tagging pattern internal/metadata.Recorder already uses.
Console-pretty output in a terminal, plain JSON otherwise — operators
running the orchestrator interactively get readable lines, while
re-exec'd children (whose stderr is typically captured to a file)
emit machine-parseable JSON.
*/

// New builds a process-scoped logger. processType is "orchestrator",
// "fetcher", or "parser"; processID distinguishes multiple fetcher
// shards or parser workers.
func New(processType string, processID int, level zerolog.Level) zerolog.Logger {
	var writer io.Writer = os.Stderr
	if isTerminal(os.Stderr) {
		writer = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}

	return zerolog.New(writer).
		Level(level).
		With().
		Timestamp().
		Str("process_type", processType).
		Int("process_id", processID).
		Logger()
}

// ParseLevel wraps zerolog.ParseLevel, defaulting to InfoLevel on an
// empty or unrecognized string rather than erroring, since log level
// is never worth aborting a crawl over.
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.InfoLevel
	}
	return level
}

func isTerminal(f *os.File) bool {
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}
