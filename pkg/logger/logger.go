package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options tune the logger. Zero values fall back to the LOG_LEVEL,
// LOG_FORMAT and ENV environment variables.
type Options struct {
	Level   string
	Format  string // "json" or "pretty"
	Service string
	Out     io.Writer
}

// New creates a new zerolog logger with structured output
func New(opts Options) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	if opts.Level == "" {
		opts.Level = os.Getenv("LOG_LEVEL")
	}
	if opts.Format == "" {
		opts.Format = os.Getenv("LOG_FORMAT")
	}
	if opts.Service == "" {
		opts.Service = "document-export-api"
	}
	if opts.Out == nil {
		opts.Out = os.Stdout
	}

	// Use pretty console output in development
	if opts.Format == "pretty" || os.Getenv("ENV") == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: opts.Out, TimeFormat: time.RFC3339}).
			Level(ParseLevel(opts.Level)).
			With().
			Timestamp().
			Caller().
			Str("service", opts.Service).
			Logger()
	}

	// JSON output for production
	return zerolog.New(opts.Out).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Str("service", opts.Service).
		Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
