// Package logging wires a single zap logger through context.Context so no
// package reaches for a package-level global, grounded on the
// zap.NewProductionConfig / zap.NewAtomicLevelAt idiom used for the
// interactive-agent CLIs in this codebase's lineage.
package logging

import (
	"context"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type ctxKey struct{}

// New builds a logger appropriate for a terminal tool: human-readable
// console encoding, warn+ to stderr by default, debug when verbose is set.
func New(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewDevelopmentConfig()
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.TimeKey = ""

	if verbose {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	return cfg.Build()
}

// WithLogger returns a context carrying logger for retrieval by From.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// From returns the logger stored in ctx, or a no-op logger if none was set.
func From(ctx context.Context) *zap.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zap.Logger); ok && l != nil {
		return l
	}
	return zap.NewNop()
}
