// Package debug provides the process logger using log/slog
package debug

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	// logger is the global logger instance
	logger *slog.Logger
	// level is the minimum level written
	level = new(slog.LevelVar)
	// mu protects the logger
	mu sync.RWMutex
)

func init() {
	level.Set(slog.LevelWarn)
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// Init configures the global logger.
// level is one of debug, info, warn, error or off; format is text or json.
func Init(lvl, format string) {
	InitWriter(os.Stderr, lvl, format)
}

// InitWriter is like Init but writes to w.
func InitWriter(w io.Writer, lvl, format string) {
	mu.Lock()
	defer mu.Unlock()

	level.Set(ParseLevel(lvl))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger = slog.New(handler)
}

// ParseLevel maps a level name to a slog level. Unknown names yield warn.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	case "off", "none":
		// Set to a level higher than any actual level
		return slog.LevelError + 1
	}
	return slog.LevelWarn
}

// Enabled returns whether debug logging is enabled
func Enabled() bool {
	return level.Level() <= slog.LevelDebug
}

// Debug logs a debug message
func Debug(msg string, args ...any) {
	Logger().Debug(msg, args...)
}

// Info logs an info message
func Info(msg string, args ...any) {
	Logger().Info(msg, args...)
}

// Warn logs a warning message
func Warn(msg string, args ...any) {
	Logger().Warn(msg, args...)
}

// Error logs an error message
func Error(msg string, args ...any) {
	Logger().Error(msg, args...)
}

// With returns a logger with the given attributes
func With(args ...any) *slog.Logger {
	return Logger().With(args...)
}

// Logger returns the underlying slog.Logger instance
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
