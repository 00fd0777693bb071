package logging

import (
	"log"
	"strings"
	"sync"
)

// writerAdapter routes printf-style output from the standard library into a
// structured Logger. Each Write is one entry.
type writerAdapter struct {
	logger Logger
	level  Level
}

// NewStdLogger returns a *log.Logger whose output is written to logger at the
// given level. It is meant for http.Server.ErrorLog and similar hooks.
func NewStdLogger(logger Logger, level Level) *log.Logger {
	return log.New(&writerAdapter{logger: logger, level: level}, "", 0)
}

func (a *writerAdapter) Write(p []byte) (int, error) {
	msg := strings.TrimRight(string(p), "\n")

	level := a.level
	switch {
	case strings.HasPrefix(msg, "ERROR:"):
		level = ErrorLevel
		msg = strings.TrimSpace(strings.TrimPrefix(msg, "ERROR:"))
	case strings.HasPrefix(msg, "WARN:"):
		level = WarnLevel
		msg = strings.TrimSpace(strings.TrimPrefix(msg, "WARN:"))
	case strings.HasPrefix(msg, "DEBUG:"):
		level = DebugLevel
		msg = strings.TrimSpace(strings.TrimPrefix(msg, "DEBUG:"))
	}

	switch level {
	case DebugLevel:
		a.logger.Debug(msg)
	case WarnLevel:
		a.logger.Warn(msg)
	case ErrorLevel, FatalLevel:
		a.logger.Error(msg)
	default:
		a.logger.Info(msg)
	}
	return len(p), nil
}

var (
	globalMu     sync.RWMutex
	globalLogger = New(nil, nil)
)

// SetGlobalLogger sets the global logger instance
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = logger
}

// GetGlobalLogger returns the global logger instance
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// Debug logs a debug message to the global logger
func Debug(msg string, fields ...Field) {
	GetGlobalLogger().Debug(msg, fields...)
}

// Info logs an info message to the global logger
func Info(msg string, fields ...Field) {
	GetGlobalLogger().Info(msg, fields...)
}

// Warn logs a warning message to the global logger
func Warn(msg string, fields ...Field) {
	GetGlobalLogger().Warn(msg, fields...)
}

// LogError logs an error message to the global logger
func LogError(msg string, fields ...Field) {
	GetGlobalLogger().Error(msg, fields...)
}

// Fatal logs a fatal message to the global logger and exits
func Fatal(msg string, fields ...Field) {
	GetGlobalLogger().Fatal(msg, fields...)
}
