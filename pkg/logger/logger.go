// Package logger provides the leveled printf-style logger used across qevo.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// LogLevel is the logger verbosity
type LogLevel int

const (
	LogError LogLevel = iota
	LogWarn
	LogInfo
	LogDebug
)

// String returns the level name
func (l LogLevel) String() string {
	switch l {
	case LogError:
		return "ERROR"
	case LogWarn:
		return "WARN"
	case LogInfo:
		return "INFO"
	case LogDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config level name ("debug", "info", ...) to a LogLevel
func ParseLevel(name string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "error":
		return LogError, nil
	case "warn", "warning":
		return LogWarn, nil
	case "", "info":
		return LogInfo, nil
	case "debug":
		return LogDebug, nil
	default:
		return LogInfo, fmt.Errorf("logger: unknown level %q", name)
	}
}

// slogLevel maps the logger level onto slog
func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogError:
		return slog.LevelError
	case LogWarn:
		return slog.LevelWarn
	case LogDebug:
		return slog.LevelDebug
	default:
		return slog.LevelInfo
	}
}

// Logger is the logging interface consumed by the pool, engine and facade
type Logger interface {
	Debug(format string, args ...interface{})
	Info(format string, args ...interface{})
	Warn(format string, args ...interface{})
	Error(format string, args ...interface{})
	SetLevel(level LogLevel)
	GetLevel() LogLevel
}

// DefaultLogger writes through a slog handler
type DefaultLogger struct {
	mu     sync.Mutex
	level  LogLevel
	lvl    *slog.LevelVar
	logger *slog.Logger
}

// NewDefaultLogger creates a text logger on stdout
func NewDefaultLogger(level LogLevel) *DefaultLogger {
	return NewDefaultLoggerWithOutput(level, os.Stdout, "text")
}

// NewDefaultLoggerWithOutput creates a logger writing to output.
// format is "json" or "text".
func NewDefaultLoggerWithOutput(level LogLevel, output io.Writer, format string) *DefaultLogger {
	lvl := new(slog.LevelVar)
	lvl.Set(level.slogLevel())

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(output, opts)
	} else {
		handler = slog.NewTextHandler(output, opts)
	}

	return &DefaultLogger{
		level:  level,
		lvl:    lvl,
		logger: slog.New(handler),
	}
}

// With returns a logger that adds attrs to every record
func (l *DefaultLogger) With(args ...any) *DefaultLogger {
	l.mu.Lock()
	defer l.mu.Unlock()
	return &DefaultLogger{
		level:  l.level,
		lvl:    l.lvl,
		logger: l.logger.With(args...),
	}
}

// SetLevel changes the verbosity
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.level = level
	l.lvl.Set(level.slogLevel())
}

// GetLevel returns the verbosity
func (l *DefaultLogger) GetLevel() LogLevel {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.level
}

func (l *DefaultLogger) Debug(format string, args ...interface{}) {
	l.log(slog.LevelDebug, format, args...)
}

func (l *DefaultLogger) Info(format string, args ...interface{}) {
	l.log(slog.LevelInfo, format, args...)
}

func (l *DefaultLogger) Warn(format string, args ...interface{}) {
	l.log(slog.LevelWarn, format, args...)
}

func (l *DefaultLogger) Error(format string, args ...interface{}) {
	l.log(slog.LevelError, format, args...)
}

func (l *DefaultLogger) log(level slog.Level, format string, args ...interface{}) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.Log(ctx, level, fmt.Sprintf(format, args...))
}

// NoOpLogger discards everything
type NoOpLogger struct{}

// NewNoOpLogger creates a logger that discards everything
func NewNoOpLogger() *NoOpLogger {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(format string, args ...interface{}) {}
func (l *NoOpLogger) Info(format string, args ...interface{})  {}
func (l *NoOpLogger) Warn(format string, args ...interface{})  {}
func (l *NoOpLogger) Error(format string, args ...interface{}) {}
func (l *NoOpLogger) SetLevel(level LogLevel)                  {}
func (l *NoOpLogger) GetLevel() LogLevel                       { return LogInfo }
