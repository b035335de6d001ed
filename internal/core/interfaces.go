package core

import (
	"context"
	"time"

	"github.com/go-chi/chi/v5"
)

// HTTPMetrics records per-request telemetry. route is the matched chi route
// pattern so label cardinality stays bounded.
type HTTPMetrics interface {
	ObserveHTTPRequest(method, route string, status int, elapsed time.Duration)
}

// HealthChecker is one dependency checked by GET /health.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// RouteRegistrar mounts a group of handlers on the /v1 router.
type RouteRegistrar func(r chi.Router)

// CheckFunc adapts a plain check function into a HealthChecker.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

// Name implements HealthChecker.
func (p CheckFunc) Name() string { return p.CheckName }

// Check implements HealthChecker.
func (p CheckFunc) Check(ctx context.Context) error { return p.Fn(ctx) }
