// Package obs contains observability utilities: the structured logger and
// the OpenTelemetry providers.
package obs

import (
	"io"
	"log/slog"
	"strings"
)

// NewLogger returns a JSON logger writing to w at the named level
// (debug, info, warn, error). Unknown names mean info.
func NewLogger(level string, w io.Writer) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})
	return slog.New(h)
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
