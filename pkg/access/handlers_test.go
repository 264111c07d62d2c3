package access

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/steward/pkg/auth"
	"github.com/platinummonkey/steward/pkg/catalog"
	"github.com/platinummonkey/steward/pkg/contextkeys"
	"github.com/platinummonkey/steward/pkg/matrix"
	"github.com/platinummonkey/steward/pkg/observability"
	"github.com/platinummonkey/steward/pkg/resolver"
)

type testEnv struct {
	db           *sql.DB
	catalogStore *catalog.Store
	matrixStore  *matrix.Store
	resolver     *resolver.Resolver
	cache        *resolver.LRUCache
	handlers     *Handlers
	enforcer     *Enforcer
	router       *mux.Router
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func setupEnv(t *testing.T) *testEnv {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE roles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE applications (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);

		CREATE TABLE areas (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			application_id INTEGER NOT NULL,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE(application_id, name)
		);

		CREATE TABLE data_access_tiers (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL
		);

		CREATE TABLE area_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_id INTEGER NOT NULL,
			area_id INTEGER NOT NULL,
			permission INTEGER NOT NULL DEFAULT 0,
			data_access_id INTEGER NOT NULL DEFAULT 7,
			can_read INTEGER NOT NULL DEFAULT 0,
			can_create INTEGER NOT NULL DEFAULT 0,
			can_update INTEGER NOT NULL DEFAULT 0,
			can_delete INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE(role_id, area_id)
		);

		CREATE TABLE application_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			role_id INTEGER NOT NULL,
			application_id INTEGER NOT NULL,
			permission INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			UNIQUE(role_id, application_id)
		);
	`)
	if err != nil {
		t.Fatalf("Failed to create test tables: %v", err)
	}

	catalogStore := catalog.NewStore(db)
	for _, tier := range catalog.BuiltInDataAccessTiers() {
		if _, err := db.Exec("INSERT INTO data_access_tiers (id, name) VALUES ($1, $2)", tier.ID, tier.Name); err != nil {
			t.Fatalf("Failed to seed tier: %v", err)
		}
	}

	matrixStore := matrix.NewStore(db)
	cache := resolver.NewLRUCache(64, time.Minute, nil)
	matrixStore.SetInvalidator(cache)
	logger := testLogger()
	capResolver := resolver.NewResolver(matrixStore, catalogStore, cache, logger, nil)
	handlers := NewHandlers(capResolver, matrixStore, catalogStore, nil, logger, nil)
	enforcer := NewEnforcer(capResolver, catalogStore, nil, logger, nil)

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	handlers.RegisterCapabilityRoutes(api)
	handlers.RegisterMatrixRoutes(api)

	return &testEnv{
		db:           db,
		catalogStore: catalogStore,
		matrixStore:  matrixStore,
		resolver:     capResolver,
		cache:        cache,
		handlers:     handlers,
		enforcer:     enforcer,
		router:       router,
	}
}

func (e *testEnv) createRole(t *testing.T, name string) int64 {
	t.Helper()
	var id int64
	if err := e.db.QueryRow("INSERT INTO roles (name) VALUES ($1) RETURNING id", name).Scan(&id); err != nil {
		t.Fatalf("Failed to create role: %v", err)
	}
	return id
}

func withPrincipal(req *http.Request, principal *auth.Principal) *http.Request {
	return req.WithContext(contextkeys.WithPrincipal(req.Context(), principal))
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}, principal *auth.Principal) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("Failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if principal != nil {
		req = withPrincipal(req, principal)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetCapabilities(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	role := env.createRole(t, "Admin")
	app, err := env.catalogStore.CreateApplication(ctx, "Billing", "")
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	area, err := env.catalogStore.CreateArea(ctx, app.ID, "Invoices")
	if err != nil {
		t.Fatalf("Failed to create area: %v", err)
	}
	if _, err := env.matrixStore.UpsertApplicationPermission(ctx, role, app.ID, true); err != nil {
		t.Fatalf("Failed to open gate: %v", err)
	}
	patch := matrix.AreaPermissionPatch{Permission: boolPtr(true), CanRead: boolPtr(true)}
	if _, err := env.matrixStore.UpsertAreaPermission(ctx, role, area.ID, patch); err != nil {
		t.Fatalf("Failed to grant: %v", err)
	}

	principal := &auth.Principal{UserID: 1, Username: "alice", RoleIDs: []int64{role}}
	rec := doJSON(t, env.router, "GET", "/api/v1/capabilities", nil, principal)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Capabilities map[string]struct {
			Permission bool `json:"permission"`
			Areas      map[string]struct {
				CanRead bool `json:"can_read"`
			} `json:"areas"`
		} `json:"capabilities"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	appKey := fmt.Sprintf("%d", app.ID)
	if !resp.Capabilities[appKey].Permission {
		t.Errorf("Expected application in capabilities: %s", rec.Body.String())
	}
	areaKey := fmt.Sprintf("%d", area.ID)
	if !resp.Capabilities[appKey].Areas[areaKey].CanRead {
		t.Errorf("Expected read capability: %s", rec.Body.String())
	}

	// No principal
	rec = doJSON(t, env.router, "GET", "/api/v1/capabilities", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without principal, got %d", rec.Code)
	}
}

func TestSaveAreaPermissionRoundTrip(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	role := env.createRole(t, "Editor")
	app, err := env.catalogStore.CreateApplication(ctx, "CRM", "")
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	area, err := env.catalogStore.CreateArea(ctx, app.ID, "Contacts")
	if err != nil {
		t.Fatalf("Failed to create area: %v", err)
	}

	principal := &auth.Principal{UserID: 1, RoleIDs: []int64{role}}

	// First save: gate + create + tier
	path := fmt.Sprintf("/api/v1/roles/%d/areas/%d", role, area.ID)
	rec := doJSON(t, env.router, "PUT", path, map[string]interface{}{
		"permission":     true,
		"can_create":     true,
		"data_access_id": 3,
	}, principal)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	// Second save touches only read
	rec = doJSON(t, env.router, "PUT", path, map[string]interface{}{"can_read": true}, principal)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var saved matrix.AreaPermission
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !saved.CanRead || !saved.CanCreate || saved.DataAccessID != 3 {
		t.Errorf("Partial save clobbered fields: %+v", saved)
	}

	// Round-trip through the grouped area lists
	rec = doJSON(t, env.router, "GET", fmt.Sprintf("/api/v1/roles/%d/areas", role), nil, principal)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var lists struct {
		Applications []ApplicationAreaList `json:"applications"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &lists); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if len(lists.Applications) != 1 {
		t.Fatalf("Expected 1 application grouping, got %d", len(lists.Applications))
	}
	group := lists.Applications[0]
	if group.ApplicationID != app.ID || len(group.Areas) != 1 {
		t.Fatalf("Unexpected grouping: %+v", group)
	}
	row := group.Areas[0].Permission
	if !row.CanRead || !row.CanCreate || row.DataAccessID != 3 {
		t.Errorf("Saved fields missing from area list: %+v", row)
	}

	// Empty patch is rejected
	rec = doJSON(t, env.router, "PUT", path, map[string]interface{}{}, principal)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for empty patch, got %d", rec.Code)
	}

	// Unknown role and area
	rec = doJSON(t, env.router, "PUT", fmt.Sprintf("/api/v1/roles/999/areas/%d", area.ID),
		map[string]interface{}{"can_read": true}, principal)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown role, got %d", rec.Code)
	}
	rec = doJSON(t, env.router, "PUT", fmt.Sprintf("/api/v1/roles/%d/areas/999", role),
		map[string]interface{}{"can_read": true}, principal)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown area, got %d", rec.Code)
	}
}

func TestSaveApplicationPermission(t *testing.T) {
	env := setupEnv(t)
	ctx := context.Background()

	role := env.createRole(t, "Admin")
	app, err := env.catalogStore.CreateApplication(ctx, "Payroll", "")
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}

	principal := &auth.Principal{UserID: 1, RoleIDs: []int64{role}}
	path := fmt.Sprintf("/api/v1/roles/%d/applications/%d", role, app.ID)

	rec := doJSON(t, env.router, "PUT", path, map[string]interface{}{"permission": true}, principal)
	if rec.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var saved matrix.ApplicationPermission
	if err := json.Unmarshal(rec.Body.Bytes(), &saved); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !saved.Permission {
		t.Errorf("Expected open gate, got %+v", saved)
	}

	rec = doJSON(t, env.router, "PUT", fmt.Sprintf("/api/v1/roles/%d/applications/999", role),
		map[string]interface{}{"permission": true}, principal)
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown application, got %d", rec.Code)
	}
}

func boolPtr(b bool) *bool { return &b }
