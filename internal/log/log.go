// Package log provides the process-wide structured logger for lightarm.
// It wraps zap with defaults suited to a terminal tool that may own stdout.
package log

import (
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// EnvLevel overrides the level passed to Init when set.
const EnvLevel = "LIGHTARM_LOG_LEVEL"

var (
	mu     sync.Mutex
	logger *zap.Logger
	level  = zap.NewAtomicLevelAt(zap.InfoLevel)
)

// ParseLevel maps "debug", "info", "warn" and "error" to a zap level.
// Anything else is info.
func ParseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zap.DebugLevel
	case "warn", "warning":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// NewConfig returns the logger config used by Init. Output goes to the given
// paths, stderr when none are given.
func NewConfig(lvl zapcore.Level, paths ...string) zap.Config {
	if len(paths) == 0 {
		paths = []string{"stderr"}
	}
	cfg := zap.Config{
		Level:    zap.NewAtomicLevelAt(lvl),
		Encoding: "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "ts",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			FunctionKey:    zapcore.OmitKey,
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.StringDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		DisableStacktrace: true,
		OutputPaths:       paths,
		ErrorOutputPaths:  []string{"stderr"},
	}
	// JSON in production, console otherwise
	if os.Getenv("GO_ENV") == "production" {
		cfg.Encoding = "json"
	}
	return cfg
}

// Init builds the global logger. LIGHTARM_LOG_LEVEL takes precedence over lvl.
func Init(lvl string, paths ...string) error {
	if env := os.Getenv(EnvLevel); env != "" {
		lvl = env
	}
	cfg := NewConfig(ParseLevel(lvl), paths...)
	l, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if logger != nil {
		_ = logger.Sync()
	}
	logger = l
	level = cfg.Level
	return nil
}

// L returns the global logger, building an info-level stderr logger on first use.
func L() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		cfg := NewConfig(zap.InfoLevel)
		l, err := cfg.Build()
		if err != nil {
			l = zap.NewNop()
		}
		logger = l
		level = cfg.Level
	}
	return logger
}

// SetLevel changes the level of the global logger at runtime.
func SetLevel(lvl zapcore.Level) {
	L()
	mu.Lock()
	level.SetLevel(lvl)
	mu.Unlock()
}

// Sync flushes buffered entries.
func Sync() error {
	return L().Sync()
}

// Debug logs at debug level.
func Debug(msg string, fields ...zap.Field) {
	L().Debug(msg, fields...)
}

// Info logs at info level.
func Info(msg string, fields ...zap.Field) {
	L().Info(msg, fields...)
}

// Warn logs at warn level.
func Warn(msg string, fields ...zap.Field) {
	L().Warn(msg, fields...)
}

// Error logs at error level.
func Error(msg string, fields ...zap.Field) {
	L().Error(msg, fields...)
}

// With returns a child of the global logger carrying the given fields.
func With(fields ...zap.Field) *zap.Logger {
	return L().With(fields...)
}
