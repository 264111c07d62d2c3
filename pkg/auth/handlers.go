package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platinummonkey/steward/pkg/audit"
	"github.com/platinummonkey/steward/pkg/httputil"
	"github.com/platinummonkey/steward/pkg/observability"
)

// Handlers provides HTTP handlers for user and token management
type Handlers struct {
	users  *UserStore
	tokens *TokenManager
	audit  audit.Logger
	logger *observability.Logger
}

// NewHandlers creates auth HTTP handlers
func NewHandlers(users *UserStore, tokens *TokenManager, auditLogger audit.Logger, logger *observability.Logger) *Handlers {
	if auditLogger == nil {
		auditLogger = audit.NewNoOpLogger()
	}
	return &Handlers{users: users, tokens: tokens, audit: auditLogger, logger: logger}
}

// RegisterRoutes registers user and token routes on the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.ListUsers).Methods("GET")
	router.HandleFunc("/users", h.CreateUser).Methods("POST")
	router.HandleFunc("/users/{id}", h.GetUser).Methods("GET")
	router.HandleFunc("/users/{id}", h.UpdateUser).Methods("PUT")
	router.HandleFunc("/users/{id}", h.DeleteUser).Methods("DELETE")
	router.HandleFunc("/users/{id}/roles", h.SetUserRoles).Methods("PUT")
	router.HandleFunc("/users/{id}/tokens", h.ListUserTokens).Methods("GET")
	router.HandleFunc("/users/{id}/tokens", h.CreateToken).Methods("POST")
	router.HandleFunc("/tokens/{id}", h.RevokeToken).Methods("DELETE")
}

// ListUsers handles GET /users
func (h *Handlers) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to list users")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// CreateUser handles POST /users
func (h *Handlers) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string  `json:"username"`
		Email    string  `json:"email"`
		RoleIDs  []int64 `json:"role_ids"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.users.CreateUser(r.Context(), req.Username, req.Email, req.RoleIDs)
	if err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			httputil.WriteConflict(w, "A user with that username already exists")
			return
		}
		h.logger.WithError(err).Error("Failed to create user")
		httputil.WriteInternalError(w)
		return
	}

	h.audit.LogMutation(r.Context(), audit.EventTypeUserCreate, audit.ResourceTypeUser,
		fmt.Sprintf("%d", user.ID), nil, fmt.Sprintf("Created user %q", user.Username))
	httputil.WriteCreated(w, user)
}

// GetUser handles GET /users/{id}
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "User not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get user")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, user)
}

// UpdateUser handles PUT /users/{id}
func (h *Handlers) UpdateUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Email  string `json:"email"`
		Active bool   `json:"active"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	user, err := h.users.UpdateUser(r.Context(), id, req.Email, req.Active)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "User not found")
			return
		}
		h.logger.WithError(err).Error("Failed to update user")
		httputil.WriteInternalError(w)
		return
	}

	h.audit.LogMutation(r.Context(), audit.EventTypeUserUpdate, audit.ResourceTypeUser,
		fmt.Sprintf("%d", user.ID), nil, fmt.Sprintf("Updated user %q", user.Username))
	httputil.WriteJSON(w, http.StatusOK, user)
}

// SetUserRoles handles PUT /users/{id}/roles
func (h *Handlers) SetUserRoles(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		RoleIDs []int64 `json:"role_ids"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	before, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "User not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get user")
		httputil.WriteInternalError(w)
		return
	}

	user, err := h.users.SetUserRoles(r.Context(), id, req.RoleIDs)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "User not found")
			return
		}
		h.logger.WithError(err).Error("Failed to set user roles")
		httputil.WriteInternalError(w)
		return
	}

	h.audit.LogMutation(r.Context(), audit.EventTypeUserRoleChange, audit.ResourceTypeUser,
		fmt.Sprintf("%d", user.ID),
		&audit.ChangeDetails{
			Before: map[string]interface{}{"role_ids": before.RoleIDs},
			After:  map[string]interface{}{"role_ids": user.RoleIDs},
		},
		fmt.Sprintf("Changed roles for user %q", user.Username))
	httputil.WriteJSON(w, http.StatusOK, user)
}

// DeleteUser handles DELETE /users/{id}
func (h *Handlers) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	user, err := h.users.GetUser(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "User not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get user")
		httputil.WriteInternalError(w)
		return
	}

	if err := h.users.DeleteUser(r.Context(), id); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "User not found")
			return
		}
		h.logger.WithError(err).Error("Failed to delete user")
		httputil.WriteInternalError(w)
		return
	}

	h.audit.LogMutation(r.Context(), audit.EventTypeUserDelete, audit.ResourceTypeUser,
		fmt.Sprintf("%d", id), nil, fmt.Sprintf("Deleted user %q", user.Username))
	httputil.WriteNoContent(w)
}

// ListUserTokens handles GET /users/{id}/tokens
func (h *Handlers) ListUserTokens(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	tokens, err := h.tokens.ListUserTokens(r.Context(), id)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list tokens")
		httputil.WriteInternalError(w)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{"tokens": tokens})
}

// CreateToken handles POST /users/{id}/tokens
func (h *Handlers) CreateToken(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req struct {
		Name      string     `json:"name"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if _, err := h.users.GetUser(r.Context(), id); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			httputil.WriteNotFoundError(w, "User not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get user")
		httputil.WriteInternalError(w)
		return
	}

	apiToken, plaintext, err := h.tokens.CreateToken(r.Context(), id, req.Name, req.ExpiresAt)
	if err != nil {
		h.logger.WithError(err).Error("Failed to create token")
		httputil.WriteInternalError(w)
		return
	}

	h.audit.LogMutation(r.Context(), audit.EventTypeTokenCreate, audit.ResourceTypeToken,
		fmt.Sprintf("%d", apiToken.ID), nil,
		fmt.Sprintf("Created token %q for user %d", apiToken.Name, id))
	// The plaintext token is returned once and never again
	httputil.WriteCreated(w, map[string]interface{}{
		"token":     apiToken,
		"plaintext": plaintext,
	})
}

// RevokeToken handles DELETE /tokens/{id}
func (h *Handlers) RevokeToken(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.tokens.RevokeToken(r.Context(), id); err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			httputil.WriteNotFoundError(w, "Token not found")
			return
		}
		h.logger.WithError(err).Error("Failed to revoke token")
		httputil.WriteInternalError(w)
		return
	}

	h.audit.LogMutation(r.Context(), audit.EventTypeTokenRevoke, audit.ResourceTypeToken,
		fmt.Sprintf("%d", id), nil, "Revoked token")
	httputil.WriteNoContent(w)
}
