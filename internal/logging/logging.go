// Package logging configures the process-wide structured logger and
// provides the leveled helpers the rest of the code logs through.
package logging

import (
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/lmittmann/tint"
)

var setupOnce sync.Once

// Setup installs the global slog handler. The level comes from
// EPDKIT_LOG_LEVEL (debug, info, warn, error) and the format from
// EPDKIT_LOG_FORMAT: json selects the JSON handler, anything else a
// colorized text handler. Colors are dropped when standard error is
// not a terminal.
func Setup() {
	setupOnce.Do(func() {
		level := parseLevel(os.Getenv("EPDKIT_LOG_LEVEL"))
		var handler slog.Handler
		if strings.EqualFold(os.Getenv("EPDKIT_LOG_FORMAT"), "json") {
			handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
		} else {
			handler = tint.NewHandler(os.Stderr, &tint.Options{
				Level:      level,
				TimeFormat: time.Kitchen,
				NoColor:    !isTerminal(os.Stderr),
			})
		}
		slog.SetDefault(slog.New(handler))
	})
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

// Debug logs at debug level with optional key-value pairs.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Info logs at info level with optional key-value pairs.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Warn logs at warn level with optional key-value pairs.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs at error level with optional key-value pairs.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// WithComponent returns a logger carrying a component attribute, for
// code that logs repeatedly from one subsystem.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

// DebugWithComponent logs at debug level tagged with a component.
func DebugWithComponent(component, msg string, args ...any) {
	slog.Debug(msg, append([]any{"component", component}, args...)...)
}

// InfoWithComponent logs at info level tagged with a component.
func InfoWithComponent(component, msg string, args ...any) {
	slog.Info(msg, append([]any{"component", component}, args...)...)
}

// WarnWithComponent logs at warn level tagged with a component.
func WarnWithComponent(component, msg string, args ...any) {
	slog.Warn(msg, append([]any{"component", component}, args...)...)
}

// ErrorWithComponent logs at error level tagged with a component.
func ErrorWithComponent(component, msg string, args ...any) {
	slog.Error(msg, append([]any{"component", component}, args...)...)
}
