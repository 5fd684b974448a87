package logger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"exportestimator/pkg/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the structured logger. Use Ctx to attach a trace id.
var Log *zap.Logger

// sugar backs the printf-style helpers; it skips the helper and logf frames.
var sugar *zap.SugaredLogger

const defaultTraceID = "0"

const timeLayout = "2006-01-02 15:04:05.000"

func init() {
	cfg := zap.NewDevelopmentConfig()
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(timeLayout)

	l, _ := cfg.Build()
	setLogger(l)
}

func setLogger(l *zap.Logger) {
	Log = l
	sugar = l.WithOptions(zap.AddCallerSkip(2)).Sugar()
}

// Init initializes logger from the global configuration
func Init() error {
	if config.GlobalConfig == nil {
		return fmt.Errorf("config not initialized")
	}
	l, err := build(config.GlobalConfig.Logger)
	if err != nil {
		return err
	}
	setLogger(l)
	return nil
}

func build(cfg config.LoggerConfig) (*zap.Logger, error) {
	syncer, err := openSyncer(cfg)
	if err != nil {
		return nil, err
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout(timeLayout),
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), syncer, parseLevel(cfg.Level))
	return zap.New(core, zap.AddCaller()), nil
}

// parseLevel maps the configured level name, defaulting to info
func parseLevel(name string) zapcore.Level {
	switch name {
	case "debug":
		return zapcore.DebugLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func openSyncer(cfg config.LoggerConfig) (zapcore.WriteSyncer, error) {
	stdout := zapcore.AddSync(os.Stdout)
	if cfg.Output != "file" && cfg.Output != "both" {
		return stdout, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}
	file, err := os.OpenFile(cfg.File.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %v", err)
	}
	if cfg.Output == "file" {
		return zapcore.AddSync(file), nil
	}
	return zapcore.NewMultiWriteSyncer(stdout, zapcore.AddSync(file)), nil
}

type traceKey struct{}

// WithTraceID returns a context whose log lines are prefixed with id.
func WithTraceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// TraceID returns the trace id carried by ctx, or the default one.
func TraceID(ctx context.Context) string {
	if ctx == nil {
		return defaultTraceID
	}
	if id, ok := ctx.Value(traceKey{}).(string); ok && id != "" {
		return id
	}
	return defaultTraceID
}

// Ctx returns the structured logger tagged with ctx's trace id
func Ctx(ctx context.Context) *zap.Logger {
	return Log.With(zap.String("trace_id", TraceID(ctx)))
}

func logf(ctx context.Context, level zapcore.Level, format string, args []interface{}) {
	sugar.Logf(level, TraceID(ctx)+"\t"+format, args...)
}

func DebugCtx(ctx context.Context, format string, args ...interface{}) {
	logf(ctx, zapcore.DebugLevel, format, args)
}

func InfoCtx(ctx context.Context, format string, args ...interface{}) {
	logf(ctx, zapcore.InfoLevel, format, args)
}

func WarnCtx(ctx context.Context, format string, args ...interface{}) {
	logf(ctx, zapcore.WarnLevel, format, args)
}

func ErrorCtx(ctx context.Context, format string, args ...interface{}) {
	logf(ctx, zapcore.ErrorLevel, format, args)
}

func FatalCtx(ctx context.Context, format string, args ...interface{}) {
	logf(ctx, zapcore.FatalLevel, format, args)
}

// Debugf logs without a request context, for library log adapters
func Debugf(format string, args ...interface{}) {
	logf(context.Background(), zapcore.DebugLevel, format, args)
}

func Infof(format string, args ...interface{}) {
	logf(context.Background(), zapcore.InfoLevel, format, args)
}

func Warnf(format string, args ...interface{}) {
	logf(context.Background(), zapcore.WarnLevel, format, args)
}

func Errorf(format string, args ...interface{}) {
	logf(context.Background(), zapcore.ErrorLevel, format, args)
}

func Fatalf(format string, args ...interface{}) {
	logf(context.Background(), zapcore.FatalLevel, format, args)
}

// Sync flushes any buffered log entries
func Sync() error {
	return Log.Sync()
}
