package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// NewObserverLogger returns a logger recording the entries at or above level, with the
// recorded entries. An unparseable level records everything.
func NewObserverLogger(level string) (*ZapLogger, *observer.ObservedLogs) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.DebugLevel
	}
	core, logs := observer.New(lvl)
	return &ZapLogger{zap.New(core)}, logs
}
