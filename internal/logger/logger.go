// Package logger sets up the slog logger used by the inksocket CLI.
package logger

import (
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
)

// New returns a logger writing tinted records to w at level.
func New(w io.Writer, level slog.Level, noColor bool) *slog.Logger {
	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
		NoColor:    noColor,
	}))
}

// Initialize sets up the global slog logger on stderr. Colour follows
// fatih/color's terminal detection, so NO_COLOR and pipes disable it.
func Initialize(level slog.Level) *slog.Logger {
	logger := New(os.Stderr, level, color.NoColor)
	slog.SetDefault(logger)
	logger.Debug("logger initialized", "level", level)

	return logger
}
