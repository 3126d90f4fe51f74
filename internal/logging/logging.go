// Package logging provides the application logger: the same small surface
// the rest of the service depends on, backed by zap.
package logging

import (
	"go.uber.org/zap"
)

// Logger wraps a sugared zap logger behind the message-plus-key-values
// calling convention used throughout the service.
type Logger struct {
	sugar *zap.SugaredLogger
}

// NewLogger creates a production logger. In development environments a
// human-readable console encoder is used instead.
func NewLogger(development bool) *Logger {
	var base *zap.Logger
	var err error
	if development {
		base, err = zap.NewDevelopment()
	} else {
		base, err = zap.NewProduction()
	}
	if err != nil {
		// Fall back to a no-op logger rather than failing startup over
		// log sink construction.
		base = zap.NewNop()
	}
	return &Logger{sugar: base.Sugar()}
}

// NewNop returns a logger that discards everything. Intended for tests.
func NewNop() *Logger {
	return &Logger{sugar: zap.NewNop().Sugar()}
}

// Debug logs a debug message with alternating key/value pairs.
func (l *Logger) Debug(msg string, args ...any) {
	l.sugar.Debugw(msg, args...)
}

// Info logs an informational message with alternating key/value pairs.
func (l *Logger) Info(msg string, args ...any) {
	l.sugar.Infow(msg, args...)
}

// Warn logs a warning with alternating key/value pairs.
func (l *Logger) Warn(msg string, args ...any) {
	l.sugar.Warnw(msg, args...)
}

// Error logs an error message with alternating key/value pairs.
func (l *Logger) Error(msg string, args ...any) {
	l.sugar.Errorw(msg, args...)
}

// Sync flushes buffered log entries. Call on shutdown.
func (l *Logger) Sync() {
	_ = l.sugar.Sync()
}
