package roles

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/steward/pkg/audit"
	"github.com/platinummonkey/steward/pkg/httputil"
	"github.com/platinummonkey/steward/pkg/observability"
)

// Handlers provides HTTP handlers for role management
type Handlers struct {
	store  *Store
	audit  audit.Logger
	logger *observability.Logger
}

// NewHandlers creates role HTTP handlers
func NewHandlers(store *Store, auditLogger audit.Logger, logger *observability.Logger) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Handlers{store: store, audit: auditLogger, logger: logger}
}

// RegisterRoutes registers role routes on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/roles", h.ListRoles).Methods("GET")
	router.HandleFunc("/roles", h.CreateRole).Methods("POST")
	router.HandleFunc("/roles/{id}", h.GetRole).Methods("GET")
	router.HandleFunc("/roles/{id}", h.UpdateRole).Methods("PUT")
	router.HandleFunc("/roles/{id}", h.DeleteRole).Methods("DELETE")
}

// ListRoles handles GET /roles
func (h *Handlers) ListRoles(w http.ResponseWriter, r *http.Request) {
	result, err := h.store.ListRoles(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list roles")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"roles": result})
}

// CreateRole handles POST /roles
func (h *Handlers) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	role, err := h.store.CreateRole(r.Context(), req.Name)
	if err != nil {
		if errors.Is(err, ErrDuplicateName) {
			httputil.WriteConflict(w, "A role with that name already exists")
			return
		}
		h.logger.WithError(err).Error("Failed to create role")
		httputil.WriteInternalError(w)
		return
	}

	h.audit.LogMutation(r.Context(), audit.EventTypeRoleCreate, audit.ResourceTypeRole,
		fmt.Sprintf("%d", role.ID), nil, fmt.Sprintf("Created role %q", role.Name))
	httputil.WriteCreated(w, role)
}

// GetRole handles GET /roles/{id}
func (h *Handlers) GetRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			httputil.WriteNotFoundError(w, "Role not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get role")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, role)
}

// UpdateRole handles PUT /roles/{id}
func (h *Handlers) UpdateRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	before, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			httputil.WriteNotFoundError(w, "Role not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get role")
		httputil.WriteInternalError(w)
		return
	}

	role, err := h.store.UpdateRole(r.Context(), id, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, ErrRoleNotFound):
			httputil.WriteNotFoundError(w, "Role not found")
		case errors.Is(err, ErrDuplicateName):
			httputil.WriteConflict(w, "A role with that name already exists")
		default:
			h.logger.WithError(err).Error("Failed to update role")
			httputil.WriteInternalError(w)
		}
		return
	}

	h.audit.LogMutation(r.Context(), audit.EventTypeRoleUpdate, audit.ResourceTypeRole,
		fmt.Sprintf("%d", role.ID),
		&audit.ChangeDetails{
			Before: map[string]interface{}{"name": before.Name},
			After:  map[string]interface{}{"name": role.Name},
		},
		fmt.Sprintf("Renamed role %q to %q", before.Name, role.Name))
	httputil.WriteJSON(w, http.StatusOK, role)
}

// DeleteRole handles DELETE /roles/{id}
func (h *Handlers) DeleteRole(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	role, err := h.store.GetRole(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			httputil.WriteNotFoundError(w, "Role not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get role")
		httputil.WriteInternalError(w)
		return
	}

	if err := h.store.DeleteRole(r.Context(), id); err != nil {
		if errors.Is(err, ErrRoleNotFound) {
			httputil.WriteNotFoundError(w, "Role not found")
			return
		}
		h.logger.WithError(err).Error("Failed to delete role")
		httputil.WriteInternalError(w)
		return
	}

	h.audit.LogMutation(r.Context(), audit.EventTypeRoleDelete, audit.ResourceTypeRole,
		fmt.Sprintf("%d", id), nil,
		fmt.Sprintf("Deleted role %q and its permission rows", role.Name))
	httputil.WriteNoContent(w)
}
