// Package logging builds the zap loggers used by alfred and alferd.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ParseLevel maps a config level name to a zap level.
func ParseLevel(name string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return zap.DebugLevel, nil
	case "", "info":
		return zap.InfoLevel, nil
	case "warn", "warning":
		return zap.WarnLevel, nil
	case "error":
		return zap.ErrorLevel, nil
	default:
		return zap.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

// New returns a console-encoded logger writing to w at the given level.
func New(w io.Writer, level zapcore.Level) *zap.Logger {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderCfg.CallerKey = ""
	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderCfg),
		zapcore.Lock(zapcore.AddSync(w)),
		level,
	)
	return zap.New(core)
}

// Stderr returns New(os.Stderr, level) for a level name, falling back to
// info for unknown names.
func Stderr(levelName string) *zap.Logger {
	level, err := ParseLevel(levelName)
	logger := New(os.Stderr, level)
	if err != nil {
		logger.Warn("falling back to info logging", zap.Error(err))
	}
	return logger
}

// CLI returns the logger for the alfred front end: debug when verbose,
// otherwise warnings and errors only.
func CLI(verbose bool) *zap.Logger {
	if verbose {
		return New(os.Stderr, zap.DebugLevel)
	}
	return New(os.Stderr, zap.WarnLevel)
}
