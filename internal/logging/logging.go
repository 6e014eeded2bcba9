// Package logging configures the structured logger shared by both
// binaries. It wraps zerolog directly rather than the generic logiface
// facade (see DESIGN.md): this repo has exactly one logging backend, so
// the facade's pluggability buys nothing.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/rs/zerolog"
)

// New builds a logger. When pretty is true, output goes through zerolog's
// ConsoleWriter (human-readable, for interactive runs), colorized via
// go-colorable so ANSI sequences render correctly even on a Windows
// console that doesn't natively understand them; otherwise it writes
// newline-delimited JSON to w, suited to log aggregation.
func New(w io.Writer, pretty bool, level zerolog.Level) zerolog.Logger {
	if pretty {
		if f, ok := w.(*os.File); ok {
			w = colorable.NewColorable(f)
		}
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// Default builds a logger writing to stderr, pretty when stderr is a
// terminal, JSON otherwise.
func Default(level zerolog.Level) zerolog.Logger {
	return New(os.Stderr, isTerminal(os.Stderr), level)
}

// WithProcess annotates logger with the fields identifying a replica
// process, used by every log line the runtime emits.
func WithProcess(logger zerolog.Logger, processID, shardID uint64) zerolog.Logger {
	return logger.With().Uint64("process_id", processID).Uint64("shard_id", shardID).Logger()
}

// WithWorker further annotates a process logger with the worker index
// handling the current message, so concurrent worker logs can be
// disentangled.
func WithWorker(logger zerolog.Logger, kind string, index int) zerolog.Logger {
	return logger.With().Str("worker_kind", kind).Int("worker_index", index).Logger()
}
