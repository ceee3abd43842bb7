// Package logger holds the process-wide zap logger.
//
// The logger is initialized exactly once in main and shared by every
// component. Before Init is called a no-op logger is returned, so library
// code never has to nil-check.
package logger

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var global *zap.SugaredLogger

// Init builds the global logger at the requested level ("debug", "info",
// "warn" or "error"). Output goes to stderr in console encoding.
func Init(level string) error {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parsing log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.OutputPaths = []string{"stderr"}
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	z, err := cfg.Build()
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	global = z.Sugar()
	return nil
}

// L returns the global logger, or a no-op logger if Init was never called.
func L() *zap.SugaredLogger {
	if global == nil {
		return zap.NewNop().Sugar()
	}
	return global
}

// Sync flushes buffered log entries. Called on exit.
func Sync() {
	if global != nil {
		_ = global.Sync()
	}
}
