// Package logger builds the slog logger used across foldkeeper: JSON for
// production and piped output, one colored line per record on a terminal.
package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

const (
	formatJSON   = "json"
	formatPretty = "pretty"
)

// Logger is the root logger. Components get children via WithComponent.
type Logger struct {
	*slog.Logger
}

type Config struct {
	// Writer defaults to stderr.
	Writer      io.Writer
	Format      string
	Environment string
	Level       slog.Level
	AddSource   bool
	// NoColor disables ANSI codes in the pretty format. Writers that are not
	// terminals never get colors.
	NoColor bool
}

// New builds a logger. An empty Format means JSON in production and pretty
// everywhere else.
func New(cfg Config) *Logger {
	w := cfg.Writer
	if w == nil {
		w = os.Stderr
	}

	format := cfg.Format
	if format == "" {
		format = formatPretty
		if cfg.Environment == "production" {
			format = formatJSON
		}
	}

	opts := &slog.HandlerOptions{
		Level:       cfg.Level,
		AddSource:   cfg.AddSource,
		ReplaceAttr: shortSource,
	}

	var h slog.Handler
	if format == formatJSON {
		h = slog.NewJSONHandler(w, opts)
	} else {
		ph := NewPrettyHandler(w, opts)
		ph.color = !cfg.NoColor && isTerminal(w)
		h = ph
	}
	return &Logger{Logger: slog.New(h)}
}

// shortSource trims source file paths to their base name.
func shortSource(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.SourceKey {
		if src, ok := a.Value.Any().(*slog.Source); ok {
			src.File = filepath.Base(src.File)
		}
	}
	return a
}

// ParseLevel reads debug, info, warn (or warning) and error, ignoring case
// and surrounding space. Anything else is info.
func ParseLevel(s string) slog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil || strings.ContainsAny(s, "+-") {
		return slog.LevelInfo
	}
	return lvl
}

// WithComponent tags every record with the emitting component.
func (l *Logger) WithComponent(name string) *slog.Logger {
	return l.With(slog.String("component", name))
}

// IsFatal reports whether err should end the process. Canceled or expired
// contexts are a normal way to stop.
func IsFatal(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}
