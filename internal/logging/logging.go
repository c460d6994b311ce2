// Package logging builds the structured logger used across localchat.
//
// The chat TUI owns the terminal, so logs go to a file rather than stderr.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/diogo/localchat/internal/config"
)

// ParseLevel converts a config level name into a slog.Level.
// Unknown names fall back to INFO.
func ParseLevel(name string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New returns a text logger writing to w at the given level
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(level),
	}))
}

// Discard returns a logger that drops every record
func Discard() *slog.Logger {
	return New(io.Discard, "ERROR")
}

// Open creates the log file from cfg and returns a logger writing to it.
// The returned close function must be called on shutdown.
func Open(cfg config.Config) (*slog.Logger, func() error, error) {
	path, err := config.GetLogPath(cfg)
	if err != nil {
		return nil, nil, err
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}

	logger := New(f, cfg.LogLevel).With("pid", os.Getpid())
	return logger, f.Close, nil
}
