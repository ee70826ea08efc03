// Package logging owns the process slog logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"

	"github.com/lmittmann/tint"
	"golang.org/x/term"
)

const (
	// FormatAuto picks tint for terminals and text otherwise.
	FormatAuto = "auto"
	// FormatTint renders coloured human-readable lines.
	FormatTint = "tint"
	// FormatText renders logfmt-style lines.
	FormatText = "text"
	// FormatJSON renders one JSON object per line.
	FormatJSON = "json"
)

var (
	level  = new(slog.LevelVar)
	logger atomic.Pointer[slog.Logger]
)

func init() {
	level.Set(slog.LevelInfo)
	Configure(FormatAuto, os.Stderr)
}

// Logger returns the process logger.
func Logger() *slog.Logger {
	return logger.Load()
}

// SetLevel changes the minimum level of the process logger.
func SetLevel(l slog.Level) {
	level.Set(l)
}

// ParseLevel maps a config string to a slog level. Unknown values map to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Configure replaces the process logger with one writing format to w.
func Configure(format string, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	logger.Store(slog.New(newHandler(format, w)))
}

func newHandler(format string, w io.Writer) slog.Handler {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case FormatJSON:
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	case FormatText:
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	case FormatTint:
		return tint.NewHandler(w, &tint.Options{Level: level})
	default:
		if isTerminal(w) {
			return tint.NewHandler(w, &tint.Options{Level: level})
		}
		return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}
