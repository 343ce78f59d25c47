// Package logging wraps a zap.SugaredLogger behind the Init/Debug/Info/Error
// call shape the rest of this codebase uses, so swapping the backing
// library never touches a call site.
package logging

import (
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var sugar *zap.SugaredLogger

// Init builds the process-wide logger from LOG_LEVEL (debug|info|error,
// default info). Must be called once before Debug/Info/Error.
func Init() {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := cfg.Build()
	if err != nil {
		// Fall back to a basic logger rather than leaving sugar nil, which
		// would panic on the first Debug/Info/Error call.
		logger = zap.NewExample()
	}
	sugar = logger.Sugar()
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(s) {
	case "debug":
		return zapcore.DebugLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func ensureInit() {
	if sugar == nil {
		Init()
	}
}

// Debug logs at debug level (only surfaced when LOG_LEVEL=debug).
func Debug(format string, v ...interface{}) {
	ensureInit()
	sugar.Debugf(format, v...)
}

// Info logs at info level.
func Info(format string, v ...interface{}) {
	ensureInit()
	sugar.Infof(format, v...)
}

// Error always logs, at error level.
func Error(format string, v ...interface{}) {
	ensureInit()
	sugar.Errorf(format, v...)
}

// Sync flushes any buffered log entries; call before process exit.
func Sync() {
	if sugar != nil {
		_ = sugar.Sync()
	}
}
