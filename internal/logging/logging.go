// Package logging builds the engine's slog loggers.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options select the handler of a logger.
type Options struct {
	// Level is debug, info, warn, error or off. Off discards everything.
	Level string
	// Format is text or json.
	Format string
	// Output defaults to os.Stderr.
	Output io.Writer
}

// New creates a logger. An empty or "off" level returns a logger that
// discards every record.
func New(opts Options) *slog.Logger {
	level, ok := ParseLevel(opts.Level)
	if !ok {
		return Discard()
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(opts.Format, "json") {
		return slog.New(slog.NewJSONHandler(out, hopts))
	}
	return slog.New(slog.NewTextHandler(out, hopts))
}

// ParseLevel parses a level name. It reports false for "", "off" and
// unknown names.
func ParseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	// above any level in use
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// Or returns l, or a discarding logger when l is nil.
func Or(l *slog.Logger) *slog.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
