// Package logger builds the slog.Logger shared by the commands, rendered by
// charmbracelet/log.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// Format selects the rendering of log records.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Options configures New.
type Options struct {
	Level  string // debug, info, warn, error
	Format Format
	Prefix string
	// Timestamps adds a timestamp to every record. Off for stdio servers
	// whose stderr is already captured by the host.
	Timestamps bool
}

// New returns a logger writing to w. An empty level means info.
func New(w io.Writer, opts Options) (*slog.Logger, error) {
	level := log.InfoLevel
	if opts.Level != "" {
		l, err := log.ParseLevel(opts.Level)
		if err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
		}
		level = l
	}

	formatter := log.TextFormatter
	switch opts.Format {
	case "", FormatText:
	case FormatJSON:
		formatter = log.JSONFormatter
	default:
		return nil, fmt.Errorf("invalid log format %q", opts.Format)
	}

	handler := log.NewWithOptions(w, log.Options{
		Level:           level,
		Formatter:       formatter,
		Prefix:          opts.Prefix,
		ReportTimestamp: opts.Timestamps,
		TimeFormat:      time.RFC3339,
	})
	return slog.New(handler), nil
}

// Must is New writing to stderr, falling back to info level text output
// when opts are invalid.
func Must(opts Options) *slog.Logger {
	l, err := New(os.Stderr, opts)
	if err != nil {
		l, _ = New(os.Stderr, Options{Prefix: opts.Prefix, Timestamps: opts.Timestamps})
		l.Warn("falling back to default logger", "error", err)
	}
	return l
}
