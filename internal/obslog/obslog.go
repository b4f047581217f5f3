// Package obslog carries a *zap.SugaredLogger on a context.Context, the
// same way the teacher's knative.dev/pkg/logging package does for its
// webhook and reconciler code. The knative package itself is not usable
// here — it is wired into Kubernetes' injection framework and this module
// has no Kubernetes surface — so this is a minimal, dependency-free
// reimplementation of just the FromContext/WithLogger contract, still
// backed by the teacher's own logging library, go.uber.org/zap.
package obslog

import (
	"context"

	"go.uber.org/zap"
)

type key struct{}

var fallback = zap.NewNop().Sugar()

// WithLogger returns a new context carrying l.
func WithLogger(ctx context.Context, l *zap.SugaredLogger) context.Context {
	return context.WithValue(ctx, key{}, l)
}

// FromContext returns the logger attached to ctx, or a no-op logger if
// none was attached. It never returns nil, so call sites never need a nil
// check before logging.
func FromContext(ctx context.Context) *zap.SugaredLogger {
	if l, ok := ctx.Value(key{}).(*zap.SugaredLogger); ok && l != nil {
		return l
	}
	return fallback
}

// NewDevelopment builds a human-readable development logger, mirroring
// cmd/tester's zap.NewDevelopmentConfig().Build() wiring.
func NewDevelopment() *zap.SugaredLogger {
	l, err := zap.NewDevelopmentConfig().Build()
	if err != nil {
		return fallback
	}
	return l.Sugar()
}

// NewProduction builds a JSON production logger at the given level name
// ("debug", "info", "warn", "error"); an unrecognized level falls back to
// "info".
func NewProduction(level string) *zap.SugaredLogger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zap.ParseAtomicLevel(level); err == nil {
		cfg.Level = lvl
	}
	l, err := cfg.Build()
	if err != nil {
		return fallback
	}
	return l.Sugar()
}
