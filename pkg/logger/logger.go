package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the global structured logger. It defaults to a no-op logger so
// packages can log before Init is called (tests, tools).
var Log = zap.NewNop()

// Init builds the global logger at the given level ("debug", "info",
// "warn", "error"). Empty or unknown levels fall back to info.
func Init(level string) {
	cfg := zap.NewProductionConfig()
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	case "warn", "warning":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zapcore.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}
	l, err := cfg.Build()
	if err != nil {
		// keep the no-op logger rather than crash on a bad logging setup
		return
	}
	Log = l
}

// Sync flushes buffered log entries. Safe to call on the no-op logger.
func Sync() {
	_ = Log.Sync()
}
