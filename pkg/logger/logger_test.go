package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevels(t *testing.T) {
	for _, tc := range []struct {
		name          string
		log           func(l *ZapLogger, msg string)
		expectedLevel zapcore.Level
	}{
		{name: "Debug", log: func(l *ZapLogger, msg string) { l.Debug(msg) }, expectedLevel: zapcore.DebugLevel},
		{name: "Info", log: func(l *ZapLogger, msg string) { l.Info(msg) }, expectedLevel: zapcore.InfoLevel},
		{name: "Warn", log: func(l *ZapLogger, msg string) { l.Warn(msg) }, expectedLevel: zapcore.WarnLevel},
		{name: "Error", log: func(l *ZapLogger, msg string) { l.Error(msg) }, expectedLevel: zapcore.ErrorLevel},
		{name: "DebugWithContext", log: func(l *ZapLogger, msg string) { l.DebugWithContext(context.Background(), msg) }, expectedLevel: zapcore.DebugLevel},
		{name: "InfoWithContext", log: func(l *ZapLogger, msg string) { l.InfoWithContext(context.Background(), msg) }, expectedLevel: zapcore.InfoLevel},
		{name: "WarnWithContext", log: func(l *ZapLogger, msg string) { l.WarnWithContext(context.Background(), msg) }, expectedLevel: zapcore.WarnLevel},
		{name: "ErrorWithContext", log: func(l *ZapLogger, msg string) { l.ErrorWithContext(context.Background(), msg) }, expectedLevel: zapcore.ErrorLevel},
	} {
		t.Run(tc.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			tc.log(&ZapLogger{zap.New(core)}, "datasource registered")

			require.Equal(t, 1, logs.Len())
			entry := logs.All()[0]
			require.Equal(t, "datasource registered", entry.Message)
			require.Empty(t, entry.ContextMap())
			require.Equal(t, tc.expectedLevel, entry.Level)
		})
	}
}

func TestWithContextAddsTraceID(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := &ZapLogger{zap.New(core)}

	traceID := trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	spanID := trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8}
	sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	l.InfoWithContext(ctx, "vector opened", zap.String("variable", "age"))
	l.InfoWithContext(context.Background(), "no span")

	require.Equal(t, map[string]interface{}{
		"variable": "age",
		"trace_id": traceID.String(),
		"span_id":  spanID.String(),
	}, logs.All()[0].ContextMap())
	require.Empty(t, logs.All()[1].ContextMap())
}

func TestWithFields(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	parent := &ZapLogger{zap.New(core)}

	child := parent.With(zap.String("datasource", "cohort"))
	child.Info("child")
	parent.Info("parent")

	require.Equal(t, map[string]interface{}{"datasource": "cohort"}, logs.All()[0].ContextMap())
	require.Empty(t, logs.All()[1].ContextMap())
}

func TestNewLogger(t *testing.T) {
	l, err := NewLogger(FormatJSON, "info")
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(zapcore.InfoLevel))
	require.False(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = NewLogger(FormatText, "debug")
	require.NoError(t, err)
	require.True(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = NewLogger("xml", LevelNone)
	require.NoError(t, err)
	require.False(t, l.Core().Enabled(zapcore.ErrorLevel))

	_, err = NewLogger(FormatJSON, "verbose")
	require.EqualError(t, err, "unknown log level: verbose")

	_, err = NewLogger("xml", "info")
	require.EqualError(t, err, "unknown log format: xml")
}

func TestObserverLogger(t *testing.T) {
	l, logs := NewObserverLogger("warn")
	l.Info("dropped")
	l.With(zap.String("table", "participants")).Warn("kept")

	require.Equal(t, "participants", logs.All()[0].ContextMap()["table"])

	require.Equal(t, 1, logs.Len())
	require.Equal(t, "kept", logs.TakeAll()[0].Message)
	require.Equal(t, 0, logs.Len())
}
