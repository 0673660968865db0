// Package rlog is the daemon's global structured logger. Grounded on the
// teacher's logger/logger.go: a package-level *zap.SugaredLogger seeded
// with a safe no-op at init so packages that log before Initialize runs
// (during flag/config parsing) never nil-panic, then swapped for a real
// logger once the CLI has parsed --json/--debug. Trimmed of the
// teacher's Lambda-specific initialization path and config-driven color
// theme, neither of which apply to a peer-to-peer daemon.
package rlog

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// L is the process-wide logger. Safe to use before Initialize; it starts
// as a no-op sink.
var L = zap.NewNop().Sugar()

// Initialize replaces L with a real logger. jsonOutput selects structured
// JSON (for log shipping) over a human-readable console encoder; debug
// lowers the level to Debug.
func Initialize(jsonOutput, debug bool) error {
	level := zap.InfoLevel
	if debug {
		level = zap.DebugLevel
	}

	var zl *zap.Logger
	var err error
	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(level)
		zl, err = cfg.Build()
	} else {
		encCfg := zap.NewDevelopmentEncoderConfig()
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zl = zap.New(zapcore.NewCore(
			zapcore.NewConsoleEncoder(encCfg),
			zapcore.AddSync(os.Stderr),
			level,
		))
	}
	if err != nil {
		return err
	}
	L = zl.Sugar()
	return nil
}

// Sync flushes any buffered log entries. Call it once on shutdown; errors
// from syncing a terminal fd are expected and ignored.
func Sync() {
	_ = L.Sync()
}

// With returns a child logger carrying the given tenant/peer fields,
// used by connection and reconciliation code so every line names what it
// was about without callers repeating themselves.
func With(keysAndValues ...interface{}) *zap.SugaredLogger {
	return L.With(keysAndValues...)
}
