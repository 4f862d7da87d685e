// Package logger is the structured logging facade of datavirt, backed by zap.
package logger

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/datavirt/datavirt/internal/build"
)

// Log formats accepted by NewLogger.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// LevelNone disables logging.
const LevelNone = "none"

// Logger is the logging facade used across datasources, the registry and the CLI.
// The WithContext variants add the trace and span ids of the active span.
type Logger interface {
	Debug(string, ...zap.Field)
	Info(string, ...zap.Field)
	Warn(string, ...zap.Field)
	Error(string, ...zap.Field)

	DebugWithContext(context.Context, string, ...zap.Field)
	InfoWithContext(context.Context, string, ...zap.Field)
	WarnWithContext(context.Context, string, ...zap.Field)
	ErrorWithContext(context.Context, string, ...zap.Field)

	// With returns a child logger adding fields to every entry.
	With(...zap.Field) Logger
}

// ZapLogger implements Logger over a *zap.Logger.
type ZapLogger struct {
	*zap.Logger
}

var _ Logger = (*ZapLogger)(nil)

func (l *ZapLogger) With(fields ...zap.Field) Logger {
	return &ZapLogger{l.Logger.With(fields...)}
}

func (l *ZapLogger) log(ctx context.Context, level zapcore.Level, msg string, fields []zap.Field) {
	ce := l.Logger.Check(level, msg)
	if ce == nil {
		return
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()))
	}
	ce.Write(fields...)
}

func (l *ZapLogger) Debug(msg string, fields ...zap.Field) {
	l.log(context.Background(), zapcore.DebugLevel, msg, fields)
}

func (l *ZapLogger) Info(msg string, fields ...zap.Field) {
	l.log(context.Background(), zapcore.InfoLevel, msg, fields)
}

func (l *ZapLogger) Warn(msg string, fields ...zap.Field) {
	l.log(context.Background(), zapcore.WarnLevel, msg, fields)
}

func (l *ZapLogger) Error(msg string, fields ...zap.Field) {
	l.log(context.Background(), zapcore.ErrorLevel, msg, fields)
}

func (l *ZapLogger) DebugWithContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields)
}

func (l *ZapLogger) InfoWithContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields)
}

func (l *ZapLogger) WarnWithContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields)
}

func (l *ZapLogger) ErrorWithContext(ctx context.Context, msg string, fields ...zap.Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields)
}

// NewNoopLogger returns a logger discarding every entry.
func NewNoopLogger() *ZapLogger {
	return &ZapLogger{zap.NewNop()}
}

// NewLogger builds a logger writing to stderr, so that command output on stdout stays
// parseable. format is FormatText or FormatJSON; level is a zap level name or LevelNone.
func NewLogger(format, level string) (*ZapLogger, error) {
	if level == LevelNone {
		return NewNoopLogger(), nil
	}
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("unknown log level: %s", level)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.DisableStacktrace = true
	cfg.DisableCaller = true
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	switch format {
	case FormatText:
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	case FormatJSON:
		cfg.InitialFields = map[string]any{
			"build.version": build.Version,
			"build.commit":  build.Commit,
		}
	default:
		return nil, fmt.Errorf("unknown log format: %s", format)
	}

	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{l}, nil
}
