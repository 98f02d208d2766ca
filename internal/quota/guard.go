package quota

import (
	"context"
	"log/slog"

	"github.com/MrWong99/lexivox/internal/config"
)

// Compile-time interface check.
var _ Store = (*Guard)(nil)

// Guard wraps a [Store] and converts backend errors into an explicit
// fail-open or fail-closed decision, so callers never have to branch on
// storage failures themselves. Every substituted decision is logged.
type Guard struct {
	inner    Store
	failMode config.QuotaFailMode
}

// NewGuard wraps inner with the configured failure mode.
func NewGuard(inner Store, failMode config.QuotaFailMode) *Guard {
	return &Guard{inner: inner, failMode: failMode}
}

// CheckAndIncrement implements [Store]. On a backend error the decision is
// taken from the failure mode instead.
func (g *Guard) CheckAndIncrement(ctx context.Context, scope, resource string, n int64) (Decision, error) {
	d, err := g.inner.CheckAndIncrement(ctx, scope, resource, n)
	if err == nil {
		return d, nil
	}
	allowed := g.failMode == config.QuotaFailOpen
	slog.Warn("quota backend unavailable, applying fail mode",
		"scope", scope, "resource", resource, "fail_mode", g.failMode, "allowed", allowed, "error", err)
	return Decision{Allowed: allowed}, nil
}

// Usage implements [Store]. Backend errors surface unchanged; reporting has
// no side effects worth masking.
func (g *Guard) Usage(ctx context.Context, scope, resource string) (Decision, error) {
	return g.inner.Usage(ctx, scope, resource)
}
