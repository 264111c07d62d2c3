package catalog

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/steward/pkg/httputil"
	"github.com/platinummonkey/steward/pkg/observability"
)

// Handlers provides HTTP handlers for catalog management
type Handlers struct {
	store  *Store
	logger *observability.Logger
}

// NewHandlers creates catalog HTTP handlers
func NewHandlers(store *Store, logger *observability.Logger) *Handlers {
	return &Handlers{store: store, logger: logger}
}

// RegisterRoutes registers catalog routes on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/applications", h.ListApplications).Methods("GET")
	router.HandleFunc("/applications", h.CreateApplication).Methods("POST")
	router.HandleFunc("/applications/{id}", h.GetApplication).Methods("GET")
	router.HandleFunc("/applications/{id}", h.UpdateApplication).Methods("PUT")
	router.HandleFunc("/applications/{id}", h.DeleteApplication).Methods("DELETE")
	router.HandleFunc("/applications/{id}/areas", h.ListApplicationAreas).Methods("GET")
	router.HandleFunc("/areas", h.ListAreas).Methods("GET")
	router.HandleFunc("/areas", h.CreateArea).Methods("POST")
	router.HandleFunc("/areas/{id}", h.GetArea).Methods("GET")
	router.HandleFunc("/areas/{id}", h.UpdateArea).Methods("PUT")
	router.HandleFunc("/areas/{id}", h.DeleteArea).Methods("DELETE")
	router.HandleFunc("/data-access-tiers", h.ListDataAccessTiers).Methods("GET")
}

// ListApplications handles GET /applications
func (h *Handlers) ListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.store.ListApplications(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list applications")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"applications": apps})
}

// CreateApplication handles POST /applications
func (h *Handlers) CreateApplication(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	app, err := h.store.CreateApplication(r.Context(), req.Name, req.URL)
	if err != nil {
		if errors.Is(err, ErrDuplicateName) {
			httputil.WriteConflict(w, "An application with that name already exists")
			return
		}
		h.logger.WithError(err).Error("Failed to create application")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteCreated(w, app)
}

// GetApplication handles GET /applications/{id}
func (h *Handlers) GetApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	app, err := h.store.GetApplication(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrApplicationNotFound) {
			httputil.WriteNotFoundError(w, "Application not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get application")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// UpdateApplication handles PUT /applications/{id}
func (h *Handlers) UpdateApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Name string `json:"name"`
		URL  string `json:"url"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	app, err := h.store.UpdateApplication(r.Context(), id, req.Name, req.URL)
	if err != nil {
		switch {
		case errors.Is(err, ErrApplicationNotFound):
			httputil.WriteNotFoundError(w, "Application not found")
		case errors.Is(err, ErrDuplicateName):
			httputil.WriteConflict(w, "An application with that name already exists")
		default:
			h.logger.WithError(err).Error("Failed to update application")
			httputil.WriteInternalError(w)
		}
		return
	}
	httputil.WriteJSON(w, http.StatusOK, app)
}

// DeleteApplication handles DELETE /applications/{id}
func (h *Handlers) DeleteApplication(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteApplication(r.Context(), id); err != nil {
		if errors.Is(err, ErrApplicationNotFound) {
			httputil.WriteNotFoundError(w, "Application not found")
			return
		}
		h.logger.WithError(err).Error("Failed to delete application")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteNoContent(w)
}

// ListApplicationAreas handles GET /applications/{id}/areas
func (h *Handlers) ListApplicationAreas(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if _, err := h.store.GetApplication(r.Context(), id); err != nil {
		if errors.Is(err, ErrApplicationNotFound) {
			httputil.WriteNotFoundError(w, "Application not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get application")
		httputil.WriteInternalError(w)
		return
	}

	areas, err := h.store.ListAreas(r.Context(), &id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list areas")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"areas": areas})
}

// ListAreas handles GET /areas
func (h *Handlers) ListAreas(w http.ResponseWriter, r *http.Request) {
	areas, err := h.store.ListAreas(r.Context(), nil)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list areas")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"areas": areas})
}

// CreateArea handles POST /areas
func (h *Handlers) CreateArea(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name          string `json:"name"`
		ApplicationID int64  `json:"application_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	area, err := h.store.CreateArea(r.Context(), req.ApplicationID, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, ErrApplicationNotFound):
			httputil.WriteNotFoundError(w, "Application not found")
		case errors.Is(err, ErrDuplicateName):
			httputil.WriteConflict(w, "An area with that name already exists in this application")
		default:
			h.logger.WithError(err).Error("Failed to create area")
			httputil.WriteInternalError(w)
		}
		return
	}
	httputil.WriteCreated(w, area)
}

// GetArea handles GET /areas/{id}
func (h *Handlers) GetArea(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	area, err := h.store.GetArea(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrAreaNotFound) {
			httputil.WriteNotFoundError(w, "Area not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get area")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, area)
}

// UpdateArea handles PUT /areas/{id}
func (h *Handlers) UpdateArea(w http.ResponseWriter, r *http.Request) {
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

	area, err := h.store.UpdateArea(r.Context(), id, req.Name)
	if err != nil {
		switch {
		case errors.Is(err, ErrAreaNotFound):
			httputil.WriteNotFoundError(w, "Area not found")
		case errors.Is(err, ErrDuplicateName):
			httputil.WriteConflict(w, "An area with that name already exists in this application")
		default:
			h.logger.WithError(err).Error("Failed to update area")
			httputil.WriteInternalError(w)
		}
		return
	}
	httputil.WriteJSON(w, http.StatusOK, area)
}

// DeleteArea handles DELETE /areas/{id}
func (h *Handlers) DeleteArea(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.store.DeleteArea(r.Context(), id); err != nil {
		if errors.Is(err, ErrAreaNotFound) {
			httputil.WriteNotFoundError(w, "Area not found")
			return
		}
		h.logger.WithError(err).Error("Failed to delete area")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteNoContent(w)
}

// ListDataAccessTiers handles GET /data-access-tiers
func (h *Handlers) ListDataAccessTiers(w http.ResponseWriter, r *http.Request) {
	tiers, err := h.store.ListDataAccessTiers(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list data access tiers")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"data_access_tiers": tiers})
}
