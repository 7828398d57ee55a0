// Package logger builds the structured logger of the scenarios command.
//
// Logs go to stderr as text or JSON at the configured level. When a log file
// is configured they are also written to that file, rotated by size.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/HatiCode/analogflow/cmd/scenarios/config"
)

// Rotation limits for the log file.
const (
	maxSizeMB  = 16
	maxBackups = 8
	maxAgeDays = 90
)

// New creates a logger from cfg. The returned closer releases the log file
// and is never nil.
func New(cfg *config.Config) (*slog.Logger, io.Closer) {
	return build(os.Stderr, cfg.LogFormat, cfg.LogLevel, cfg.LogFile)
}

func build(console io.Writer, format, level, file string) (*slog.Logger, io.Closer) {
	var (
		out    = console
		closer io.Closer = nopCloser{}
	)
	if file != "" {
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    maxSizeMB,
			MaxBackups: maxBackups,
			MaxAge:     maxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(console, rotating)
		closer = rotating
	}

	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler).With("service", "analogflow"), closer
}

// ParseLevel maps a level name to a slog level. Unknown names mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
