package logger

import (
	"fmt"
	"runtime/debug"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var current atomic.Pointer[zap.SugaredLogger]

func init() {
	current.Store(zap.NewNop().Sugar())
}

// Init initializes the process logger
func Init(level string, development bool) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if development {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	l, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	current.Store(l.Sugar())

	LogInfo("Logger initialized, level: %s", lvl)
	return nil
}

// Close flushes buffered log entries
func Close() {
	_ = current.Load().Sync()
}

// L returns the underlying sugared logger
func L() *zap.SugaredLogger {
	return current.Load()
}

// With returns a child logger carrying the given key/value pairs
func With(args ...any) *zap.SugaredLogger {
	return current.Load().With(args...)
}

// LogDebug logs a debug message
func LogDebug(format string, args ...any) {
	current.Load().Debugf(format, args...)
}

// LogInfo logs an info message
func LogInfo(format string, args ...any) {
	current.Load().Infof(format, args...)
}

// LogWarn logs a warning message
func LogWarn(format string, args ...any) {
	current.Load().Warnf(format, args...)
}

// LogError logs an error message
func LogError(format string, args ...any) {
	current.Load().Errorf(format, args...)
}

// LogPanic logs a recovered panic with stack trace
func LogPanic(r any) {
	current.Load().Errorw("[PANIC] recovered", "panic", r, "stack", string(debug.Stack()))
}
