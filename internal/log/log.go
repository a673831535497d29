// Package log provides the structured logger used across the healer
// service. It wraps go.uber.org/zap with a small hook mechanism so
// request-scoped fields (trace ID, operation name) can be attached to
// every log line without every call site threading them through.
package log

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a structured logging field. It is a type alias for
// zapcore.Field so values returned by String, Int, and friends compose
// directly with *zap.Logger.
type Field = zapcore.Field

func String(key, val string) Field             { return zap.String(key, val) }
func Int(key string, val int) Field            { return zap.Int(key, val) }
func Any(key string, val any) Field            { return zap.Any(key, val) }
func Duration(key string, val time.Duration) Field { return zap.Duration(key, val) }
func Strings(key string, val []string) Field   { return zap.Strings(key, val) }
func Cause(err error) Field                    { return zap.Error(err) }

// Hook inspects and optionally extends the field list for a log call.
type Hook interface {
	Apply(ctx context.Context, msg string, fields ...Field) []Field
}

// HookFunc adapts a function to a Hook.
type HookFunc func(ctx context.Context, msg string, fields ...Field) []Field

func (f HookFunc) Apply(ctx context.Context, msg string, fields ...Field) []Field {
	return f(ctx, msg, fields...)
}

// Config controls how the global Logger is built.
type Config struct {
	// Level is one of debug, info, warn, error. Defaults to info.
	Level string `conf:"level" yaml:"level" json:"level"`

	// Encoding is "console" or "json". Defaults to console.
	Encoding string `conf:"encoding" yaml:"encoding" json:"encoding"`
}

// Logger is a hook-aware wrapper around *zap.Logger.
type Logger struct {
	zap *zap.Logger

	mu    sync.RWMutex
	hooks []Hook
}

// NewLogger builds a Logger from cfg.
func NewLogger(cfg Config) *Logger {
	zapCfg := zap.NewProductionConfig()
	if cfg.Encoding == "console" || cfg.Encoding == "" {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		var level zapcore.Level
		if err := level.UnmarshalText([]byte(cfg.Level)); err == nil {
			zapCfg.Level = zap.NewAtomicLevelAt(level)
		}
	}

	built, err := zapCfg.Build()
	if err != nil {
		built = zap.NewNop()
	}

	return &Logger{zap: built}
}

// AddHook registers h. Hooks run in registration order and may append
// fields to every subsequent log call.
func (l *Logger) AddHook(h Hook) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.hooks = append(l.hooks, h)
}

func (l *Logger) apply(ctx context.Context, msg string, fields []Field) []Field {
	l.mu.RLock()
	hooks := l.hooks
	l.mu.RUnlock()

	for _, h := range hooks {
		fields = h.Apply(ctx, msg, fields...)
	}

	return fields
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.zap.Debug(msg, l.apply(ctx, msg, fields)...)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.zap.Info(msg, l.apply(ctx, msg, fields)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.zap.Warn(msg, l.apply(ctx, msg, fields)...)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.zap.Error(msg, l.apply(ctx, msg, fields)...)
}

// DebugEnabled reports whether the debug level is active.
func (l *Logger) DebugEnabled(_ context.Context) bool {
	return l.zap.Core().Enabled(zapcore.DebugLevel)
}

// AsSlog adapts the Logger to *slog.Logger, for libraries (net/http,
// fx) that only know how to log through the standard library's
// structured logging interface.
func (l *Logger) AsSlog() *slog.Logger {
	return slog.New(&slogHandler{core: l.zap.Core()})
}

type slogHandler struct {
	core zapcore.Core
}

func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.core.Enabled(slogLevelToZap(level))
}

func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	fields := make([]zapcore.Field, 0, record.NumAttrs())
	record.Attrs(func(a slog.Attr) bool {
		fields = append(fields, zap.Any(a.Key, a.Value.Any()))
		return true
	})

	entry := zapcore.Entry{
		Level:   slogLevelToZap(record.Level),
		Time:    record.Time,
		Message: record.Message,
	}

	if ce := h.core.Check(entry, nil); ce != nil {
		ce.Write(fields...)
	}

	return nil
}

func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	fields := make([]zapcore.Field, 0, len(attrs))
	for _, a := range attrs {
		fields = append(fields, zap.Any(a.Key, a.Value.Any()))
	}

	return &slogHandler{core: h.core.With(fields)}
}

func (h *slogHandler) WithGroup(_ string) slog.Handler {
	return h
}

func slogLevelToZap(level slog.Level) zapcore.Level {
	switch {
	case level >= slog.LevelError:
		return zapcore.ErrorLevel
	case level >= slog.LevelWarn:
		return zapcore.WarnLevel
	case level >= slog.LevelInfo:
		return zapcore.InfoLevel
	default:
		return zapcore.DebugLevel
	}
}

var (
	globalMu     sync.RWMutex
	globalLogger = NewLogger(Config{})
)

// SetGlobalConfig rebuilds the global logger from cfg and wires the
// trace-field hook so every log line carries the active trace ID and
// operation name.
func SetGlobalConfig(cfg Config) {
	logger := NewLogger(cfg)
	logger.AddHook(HookFunc(traceFields))

	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// GetGlobalLogger returns the process-wide Logger.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()

	return globalLogger
}

func Debug(ctx context.Context, msg string, fields ...Field) { GetGlobalLogger().Debug(ctx, msg, fields...) }
func Info(ctx context.Context, msg string, fields ...Field)  { GetGlobalLogger().Info(ctx, msg, fields...) }
func Warn(ctx context.Context, msg string, fields ...Field)  { GetGlobalLogger().Warn(ctx, msg, fields...) }
func Error(ctx context.Context, msg string, fields ...Field) { GetGlobalLogger().Error(ctx, msg, fields...) }

func DebugEnabled(ctx context.Context) bool { return GetGlobalLogger().DebugEnabled(ctx) }
