package access

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/steward/pkg/audit"
	"github.com/platinummonkey/steward/pkg/catalog"
	"github.com/platinummonkey/steward/pkg/httputil"
	"github.com/platinummonkey/steward/pkg/matrix"
	"github.com/platinummonkey/steward/pkg/middleware"
	"github.com/platinummonkey/steward/pkg/observability"
	"github.com/platinummonkey/steward/pkg/resolver"
)

// Handlers provides the capability and permission matrix endpoints
type Handlers struct {
	resolver *resolver.Resolver
	matrix   *matrix.Store
	catalog  *catalog.Store
	audit    audit.Logger
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewHandlers creates access HTTP handlers. metrics may be nil.
func NewHandlers(
	capResolver *resolver.Resolver,
	matrixStore *matrix.Store,
	catalogStore *catalog.Store,
	auditLogger audit.Logger,
	logger *observability.Logger,
	metrics *observability.Metrics,
) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Handlers{
		resolver: capResolver,
		matrix:   matrixStore,
		catalog:  catalogStore,
		audit:    auditLogger,
		logger:   logger,
		metrics:  metrics,
	}
}

// RegisterCapabilityRoutes registers the read-only capability endpoint.
// It only needs authentication, not matrix-management capability.
func (h *Handlers) RegisterCapabilityRoutes(router *mux.Router) {
	router.HandleFunc("/capabilities", h.GetCapabilities).Methods("GET")
}

// RegisterMatrixRoutes registers the permission matrix endpoints. The
// caller wraps the router with the matrix-management capability check.
func (h *Handlers) RegisterMatrixRoutes(router *mux.Router) {
	router.HandleFunc("/roles/{id}/areas", h.GetAreaLists).Methods("GET")
	router.HandleFunc("/roles/{id}/areas/{areaID}", h.SaveAreaPermission).Methods("PUT")
	router.HandleFunc("/roles/{id}/applications/{appID}", h.SaveApplicationPermission).Methods("PUT")
}

// GetCapabilities handles GET /capabilities: the caller's own resolved
// capability map.
func (h *Handlers) GetCapabilities(w http.ResponseWriter, r *http.Request) {
	principal, ok := middleware.GetPrincipal(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "Authentication required")
		return
	}

	capabilities, err := h.resolver.Resolve(r.Context(), principal.RoleIDs)
	if err != nil {
		// Fail closed: an error never grants access
		h.logger.WithError(err).Error("Capability resolution failed")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"capabilities": capabilities})
}

// GetAreaLists handles GET /roles/{id}/areas: the full editing grid for
// one role, areas grouped by application.
func (h *Handlers) GetAreaLists(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	apps, err := h.catalog.ListApplications(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list applications")
		httputil.WriteInternalError(w)
		return
	}
	areas, err := h.catalog.ListAreas(r.Context(), nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list areas")
		httputil.WriteInternalError(w)
		return
	}

	areaRowsByArea, err := h.matrix.GetAreaPermissionsForRoles(r.Context(), []int64{roleID})
	if err != nil {
		h.logger.WithError(err).Error("Failed to load area permissions")
		httputil.WriteInternalError(w)
		return
	}
	areaRows := make(map[int64]matrix.AreaPermission, len(areaRowsByArea))
	for areaID, rows := range areaRowsByArea {
		if len(rows) > 0 {
			areaRows[areaID] = rows[0]
		}
	}

	appRowsByApp, err := h.matrix.GetApplicationPermissionsForRoles(r.Context(), []int64{roleID})
	if err != nil {
		h.logger.WithError(err).Error("Failed to load application permissions")
		httputil.WriteInternalError(w)
		return
	}
	appRows := make(map[int64]matrix.ApplicationPermission, len(appRowsByApp))
	for appID, rows := range appRowsByApp {
		if len(rows) > 0 {
			appRows[appID] = rows[0]
		}
	}

	lists := buildAreaLists(apps, areas, roleID, areaRows, appRows)
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"role_id":      roleID,
		"applications": lists,
	})
}

// SaveAreaPermission handles PUT /roles/{id}/areas/{areaID}: a field
// level upsert of one matrix cell.
func (h *Handlers) SaveAreaPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	areaID, ok := httputil.ParsePathInt64OrError(w, r, "areaID")
	if !ok {
		return
	}

	var patch matrix.AreaPermissionPatch
	if !httputil.ParseJSONOrError(w, r, &patch) {
		return
	}
	if patch.IsEmpty() {
		httputil.WriteBadRequest(w, "At least one permission field is required")
		return
	}

	before, _, err := h.matrix.GetAreaPermission(r.Context(), roleID, areaID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load area permission")
		httputil.WriteInternalError(w)
		return
	}

	updated, err := h.matrix.UpsertAreaPermission(r.Context(), roleID, areaID, patch)
	if err != nil {
		switch {
		case errors.Is(err, matrix.ErrRoleNotFound):
			httputil.WriteNotFoundError(w, "Role not found")
		case errors.Is(err, matrix.ErrAreaNotFound):
			httputil.WriteNotFoundError(w, "Area not found")
		case errors.Is(err, matrix.ErrInvalidDataAccessTier):
			httputil.WriteBadRequest(w, "Unknown data access tier")
		default:
			h.logger.WithError(err).Error("Failed to save area permission")
			httputil.WriteInternalError(w)
		}
		return
	}

	if h.metrics != nil {
		h.metrics.MatrixWritesTotal.WithLabelValues("area").Inc()
	}
	h.audit.LogMutation(r.Context(), audit.EventTypeAreaPermissionUpdate, audit.ResourceTypePermission,
		fmt.Sprintf("role:%d/area:%d", roleID, areaID),
		&audit.ChangeDetails{
			Before: areaPermissionFields(before),
			After:  areaPermissionFields(updated),
		},
		fmt.Sprintf("Updated area permission for role %d on area %d", roleID, areaID))
	httputil.WriteJSON(w, http.StatusOK, updated)
}

// SaveApplicationPermission handles PUT /roles/{id}/applications/{appID}
func (h *Handlers) SaveApplicationPermission(w http.ResponseWriter, r *http.Request) {
	roleID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	appID, ok := httputil.ParsePathInt64OrError(w, r, "appID")
	if !ok {
		return
	}

	var req struct {
		Permission bool `json:"permission"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	before, err := h.matrix.GetApplicationPermission(r.Context(), roleID, appID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load application permission")
		httputil.WriteInternalError(w)
		return
	}

	updated, err := h.matrix.UpsertApplicationPermission(r.Context(), roleID, appID, req.Permission)
	if err != nil {
		switch {
		case errors.Is(err, matrix.ErrRoleNotFound):
			httputil.WriteNotFoundError(w, "Role not found")
		case errors.Is(err, matrix.ErrApplicationNotFound):
			httputil.WriteNotFoundError(w, "Application not found")
		default:
			h.logger.WithError(err).Error("Failed to save application permission")
			httputil.WriteInternalError(w)
		}
		return
	}

	if h.metrics != nil {
		h.metrics.MatrixWritesTotal.WithLabelValues("application").Inc()
	}
	h.audit.LogMutation(r.Context(), audit.EventTypeAppPermissionUpdate, audit.ResourceTypePermission,
		fmt.Sprintf("role:%d/application:%d", roleID, appID),
		&audit.ChangeDetails{
			Before: map[string]interface{}{"permission": before.Permission},
			After:  map[string]interface{}{"permission": updated.Permission},
		},
		fmt.Sprintf("Updated application permission for role %d on application %d", roleID, appID))
	httputil.WriteJSON(w, http.StatusOK, updated)
}

func areaPermissionFields(p *matrix.AreaPermission) map[string]interface{} {
	return map[string]interface{}{
		"permission":     p.Permission,
		"data_access_id": p.DataAccessID,
		"can_read":       p.CanRead,
		"can_create":     p.CanCreate,
		"can_update":     p.CanUpdate,
		"can_delete":     p.CanDelete,
	}
}
