package access

import (
	"context"
	"fmt"
	"net/http"

	"github.com/platinummonkey/steward/pkg/audit"
	"github.com/platinummonkey/steward/pkg/catalog"
	"github.com/platinummonkey/steward/pkg/httputil"
	"github.com/platinummonkey/steward/pkg/matrix"
	"github.com/platinummonkey/steward/pkg/middleware"
	"github.com/platinummonkey/steward/pkg/observability"
	"github.com/platinummonkey/steward/pkg/resolver"
)

// Enforcer gates handlers on the caller's resolved capabilities. Every
// request re-resolves from the current matrix (through the cache), so a
// revoked grant takes effect on the caller's next request.
type Enforcer struct {
	resolver *resolver.Resolver
	catalog  *catalog.Store
	audit    audit.Logger
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewEnforcer creates a capability enforcer. metrics may be nil.
func NewEnforcer(
	capResolver *resolver.Resolver,
	catalogStore *catalog.Store,
	auditLogger audit.Logger,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Enforcer {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Enforcer{
		resolver: capResolver,
		catalog:  catalogStore,
		audit:    auditLogger,
		logger:   logger,
		metrics:  metrics,
	}
}

// RequireArea requires the caller to hold the action within the named
// area of the named application. Denials are audited; any lookup or
// resolution failure denies.
func (e *Enforcer) RequireArea(applicationName, areaName string, action matrix.Action) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := middleware.GetPrincipal(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "Authentication required")
				return
			}

			allowed, err := e.Allowed(r.Context(), principal.RoleIDs, applicationName, areaName, action)
			if err != nil {
				e.logger.WithError(err).Error("Capability check failed")
				e.deny(r, applicationName, areaName, action, "capability check failed")
				httputil.WriteForbidden(w, "You do not have permission to perform this action")
				return
			}
			if !allowed {
				e.deny(r, applicationName, areaName, action, "insufficient capability")
				httputil.WriteForbidden(w, "You do not have permission to perform this action")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Allowed reports whether the role set holds the action within the
// named area. Errors fail closed at the caller.
func (e *Enforcer) Allowed(ctx context.Context, roleIDs []int64, applicationName, areaName string, action matrix.Action) (bool, error) {
	app, err := e.catalog.GetApplicationByName(ctx, applicationName)
	if err != nil {
		return false, fmt.Errorf("failed to look up application %q: %w", applicationName, err)
	}
	area, err := e.catalog.GetAreaByName(ctx, app.ID, areaName)
	if err != nil {
		return false, fmt.Errorf("failed to look up area %q: %w", areaName, err)
	}

	capabilities, err := e.resolver.Resolve(ctx, roleIDs)
	if err != nil {
		return false, fmt.Errorf("failed to resolve capabilities: %w", err)
	}

	return capabilities.Area(app.ID, area.ID).Allows(action), nil
}

func (e *Enforcer) deny(r *http.Request, applicationName, areaName string, action matrix.Action, reason string) {
	if e.metrics != nil {
		e.metrics.AccessDeniedTotal.WithLabelValues(applicationName, areaName, string(action)).Inc()
	}
	e.audit.LogDenied(r.Context(), audit.ResourceTypeArea,
		fmt.Sprintf("%s/%s#%s", applicationName, areaName, action), reason)
}
