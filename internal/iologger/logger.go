// Package iologger initializes the global slog logger from the
// application configuration.
package iologger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/openepi/sentinel/pkg/config"
)

// Init sets the default slog logger. Destination is STDOUT, STDERR or a
// log file path; log files are appended so restarts keep history.
func Init(cfg config.LogConfig) error {
	var writer io.Writer
	switch strings.ToUpper(cfg.Destination) {
	case "", "STDERR":
		writer = os.Stderr
	case "STDOUT":
		writer = os.Stdout
	default:
		file, err := os.OpenFile(
			cfg.Destination, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return NewLogFileError(cfg.Destination, err)
		}
		writer = file
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "text":
		handler = slog.NewTextHandler(writer, opts)
	default:
		handler = slog.NewJSONHandler(writer, opts)
	}

	slog.SetDefault(slog.New(handler))
	return nil
}

// ParseLevel converts a level name to slog.Level; unknown names mean
// Info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
