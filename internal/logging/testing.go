package logging

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewTestLogger returns a logger that records entries in memory.
// The returned ObservedLogs can be inspected in assertions.
func NewTestLogger(level zapcore.Level) (*Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return &Logger{
		zap:    zap.New(core),
		config: NewDefaultConfig(),
	}, logs
}
