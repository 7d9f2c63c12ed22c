package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options configures New.
type Options struct {
	// Level is a zerolog level name; empty means info.
	Level string
	// Format is "json" (default) or "console".
	Format string
	// Writer defaults to stderr.
	Writer io.Writer
}

// New builds a timestamped zerolog logger from opts.
func New(opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if opts.Level != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(opts.Level))
		if err != nil {
			return zerolog.Nop(), fmt.Errorf("logger: invalid level %q: %w", opts.Level, err)
		}
		level = parsed
	}

	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	switch opts.Format {
	case "", "json":
	case "console":
		writer = zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
	default:
		return zerolog.Nop(), fmt.Errorf("logger: unsupported format %q", opts.Format)
	}

	return zerolog.New(writer).
		With().
		Timestamp().
		Logger().
		Level(level), nil
}

// WithScope returns a child logger tagged with scope.
func WithScope(base zerolog.Logger, scope string) zerolog.Logger {
	return base.With().Str("scope", scope).Logger()
}
