package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// InitLogging configures the default slog logger from LOG_LEVEL and LOG_FORMAT.
// Supported levels: debug, info, warn/warning, error. Defaults to info.
// LOG_FORMAT=json switches to JSON output; anything else is text.
// Logs go to stderr so command output on stdout stays clean.
func InitLogging() {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))))
}

// NewHandler builds the handler InitLogging installs, writing to w.
func NewHandler(w io.Writer, levelStr, format string) slog.Handler {
	opts := &slog.HandlerOptions{Level: ParseLevel(levelStr)}
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// ParseLevel maps a level name onto a slog.Level, defaulting to info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
