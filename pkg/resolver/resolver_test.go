package resolver

import (
	"context"
	"database/sql"
	"io"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/platinummonkey/steward/pkg/catalog"
	"github.com/platinummonkey/steward/pkg/matrix"
	"github.com/platinummonkey/steward/pkg/observability"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}

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

	for _, tier := range catalog.BuiltInDataAccessTiers() {
		if _, err := db.Exec("INSERT INTO data_access_tiers (id, name) VALUES ($1, $2)", tier.ID, tier.Name); err != nil {
			t.Fatalf("Failed to seed tier: %v", err)
		}
	}

	return db
}

func testLogger() *observability.Logger {
	return observability.NewLogger(observability.ErrorLevel, io.Discard)
}

func boolPtr(b bool) *bool    { return &b }
func int64Ptr(i int64) *int64 { return &i }

type fixture struct {
	db           *sql.DB
	catalogStore *catalog.Store
	matrixStore  *matrix.Store
	resolver     *Resolver
}

func setupFixture(t *testing.T, cache Cache) *fixture {
	db := setupTestDB(t)
	t.Cleanup(func() { db.Close() })

	catalogStore := catalog.NewStore(db)
	matrixStore := matrix.NewStore(db)
	r := NewResolver(matrixStore, catalogStore, cache, testLogger(), nil)
	return &fixture{db: db, catalogStore: catalogStore, matrixStore: matrixStore, resolver: r}
}

func (f *fixture) createRole(t *testing.T, name string) int64 {
	t.Helper()
	var id int64
	err := f.db.QueryRow("INSERT INTO roles (name) VALUES ($1) RETURNING id", name).Scan(&id)
	if err != nil {
		t.Fatalf("Failed to create role: %v", err)
	}
	return id
}

func TestResolver_NoRowsResolvesEmpty(t *testing.T) {
	f := setupFixture(t, nil)
	ctx := context.Background()

	viewer := f.createRole(t, "Viewer")

	capabilities, err := f.resolver.Resolve(ctx, []int64{viewer})
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if len(capabilities) != 0 {
		t.Errorf("Expected empty capability map for role with no rows, got %v", capabilities)
	}

	// No roles at all
	capabilities, err = f.resolver.Resolve(ctx, nil)
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if len(capabilities) != 0 {
		t.Errorf("Expected empty capability map for no roles, got %v", capabilities)
	}
}

func TestResolver_AdminScenario(t *testing.T) {
	f := setupFixture(t, nil)
	ctx := context.Background()

	admin := f.createRole(t, "Admin")
	app, err := f.catalogStore.CreateApplication(ctx, "Billing", "")
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	invoices, err := f.catalogStore.CreateArea(ctx, app.ID, "Invoices")
	if err != nil {
		t.Fatalf("Failed to create area: %v", err)
	}
	refunds, err := f.catalogStore.CreateArea(ctx, app.ID, "Refunds")
	if err != nil {
		t.Fatalf("Failed to create area: %v", err)
	}

	if _, err := f.matrixStore.UpsertApplicationPermission(ctx, admin, app.ID, true); err != nil {
		t.Fatalf("Failed to open application gate: %v", err)
	}
	if _, err := f.matrixStore.UpsertAreaPermission(ctx, admin, invoices.ID, matrix.AreaPermissionPatch{
		Permission:   boolPtr(true),
		CanRead:      boolPtr(true),
		CanCreate:    boolPtr(true),
		CanUpdate:    boolPtr(true),
		CanDelete:    boolPtr(false),
		DataAccessID: int64Ptr(1),
	}); err != nil {
		t.Fatalf("Failed to grant area permission: %v", err)
	}
	// Refunds has a stored row but a closed area gate
	if _, err := f.matrixStore.UpsertAreaPermission(ctx, admin, refunds.ID, matrix.AreaPermissionPatch{
		CanRead: boolPtr(true),
	}); err != nil {
		t.Fatalf("Failed to store refunds row: %v", err)
	}

	capabilities, err := f.resolver.Resolve(ctx, []int64{admin})
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}

	appCapability, ok := capabilities[app.ID]
	if !ok {
		t.Fatal("Expected application in capability map")
	}
	if !appCapability.Permission || appCapability.Name != "Billing" {
		t.Errorf("Unexpected application capability: %+v", appCapability)
	}

	area, ok := appCapability.Areas[invoices.ID]
	if !ok {
		t.Fatal("Expected invoices area in capability map")
	}
	if !area.CanRead || !area.CanCreate || !area.CanUpdate || area.CanDelete {
		t.Errorf("Unexpected area flags: %+v", area)
	}
	if area.DataAccessID != 1 {
		t.Errorf("Expected data access tier 1, got %d", area.DataAccessID)
	}
	if !area.Editable() {
		t.Error("Expected area to be editable")
	}

	if _, ok := appCapability.Areas[refunds.ID]; ok {
		t.Error("Area with a closed gate must be excluded")
	}
}

func TestResolver_ClosedApplicationGateHidesAreas(t *testing.T) {
	f := setupFixture(t, nil)
	ctx := context.Background()

	role := f.createRole(t, "Clerk")
	app, err := f.catalogStore.CreateApplication(ctx, "Payroll", "")
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	area, err := f.catalogStore.CreateArea(ctx, app.ID, "Salaries")
	if err != nil {
		t.Fatalf("Failed to create area: %v", err)
	}

	// Full area grant, but no application gate row at all
	if _, err := f.matrixStore.UpsertAreaPermission(ctx, role, area.ID, matrix.AreaPermissionPatch{
		Permission: boolPtr(true),
		CanRead:    boolPtr(true),
	}); err != nil {
		t.Fatalf("Failed to grant area permission: %v", err)
	}

	capabilities, err := f.resolver.Resolve(ctx, []int64{role})
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if _, ok := capabilities[app.ID]; ok {
		t.Error("Application without an open gate must be omitted entirely")
	}

	// Explicitly closed gate behaves the same
	if _, err := f.matrixStore.UpsertApplicationPermission(ctx, role, app.ID, false); err != nil {
		t.Fatalf("Failed to close gate: %v", err)
	}
	capabilities, err = f.resolver.Resolve(ctx, []int64{role})
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if _, ok := capabilities[app.ID]; ok {
		t.Error("Application with a closed gate must be omitted entirely")
	}
}

func TestResolver_MultiRoleUnion(t *testing.T) {
	f := setupFixture(t, nil)
	ctx := context.Background()

	reader := f.createRole(t, "Reader")
	editor := f.createRole(t, "Editor")
	app, err := f.catalogStore.CreateApplication(ctx, "CRM", "")
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	area, err := f.catalogStore.CreateArea(ctx, app.ID, "Contacts")
	if err != nil {
		t.Fatalf("Failed to create area: %v", err)
	}

	// Only the reader role opens the application gate
	if _, err := f.matrixStore.UpsertApplicationPermission(ctx, reader, app.ID, true); err != nil {
		t.Fatalf("Failed to open gate: %v", err)
	}
	if _, err := f.matrixStore.UpsertAreaPermission(ctx, reader, area.ID, matrix.AreaPermissionPatch{
		Permission: boolPtr(true), CanRead: boolPtr(true), DataAccessID: int64Ptr(2),
	}); err != nil {
		t.Fatalf("Failed to grant: %v", err)
	}
	if _, err := f.matrixStore.UpsertAreaPermission(ctx, editor, area.ID, matrix.AreaPermissionPatch{
		Permission: boolPtr(true), CanUpdate: boolPtr(true), DataAccessID: int64Ptr(5),
	}); err != nil {
		t.Fatalf("Failed to grant: %v", err)
	}

	combined, err := f.resolver.Resolve(ctx, []int64{reader, editor})
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	area5 := combined.Area(app.ID, area.ID)
	if !area5.CanRead || !area5.CanUpdate {
		t.Errorf("Expected union of both roles' flags, got %+v", area5)
	}
	if area5.DataAccessID != 5 {
		t.Errorf("Expected highest contributing tier 5, got %d", area5.DataAccessID)
	}

	// The editor alone cannot even see the application
	editorOnly, err := f.resolver.Resolve(ctx, []int64{editor})
	if err != nil {
		t.Fatalf("Failed to resolve: %v", err)
	}
	if _, ok := editorOnly[app.ID]; ok {
		t.Error("Editor role alone should not see the application")
	}
}

func TestResolver_SkipsOrphanedRows(t *testing.T) {
	f := setupFixture(t, nil)
	ctx := context.Background()

	role := f.createRole(t, "Admin")
	app, err := f.catalogStore.CreateApplication(ctx, "Legacy", "")
	if err != nil {
		t.Fatalf("Failed to create application: %v", err)
	}
	area, err := f.catalogStore.CreateArea(ctx, app.ID, "Archive")
	if err != nil {
		t.Fatalf("Failed to create area: %v", err)
	}

	if _, err := f.matrixStore.UpsertApplicationPermission(ctx, role, app.ID, true); err != nil {
		t.Fatalf("Failed to open gate: %v", err)
	}
	if _, err := f.matrixStore.UpsertAreaPermission(ctx, role, area.ID, matrix.AreaPermissionPatch{
		Permission: boolPtr(true), CanRead: boolPtr(true),
	}); err != nil {
		t.Fatalf("Failed to grant: %v", err)
	}

	// Delete the area out from under its permission rows
	if _, err := f.db.Exec("DELETE FROM areas WHERE id = $1", area.ID); err != nil {
		t.Fatalf("Failed to delete area: %v", err)
	}

	capabilities, err := f.resolver.Resolve(ctx, []int64{role})
	if err != nil {
		t.Fatalf("Resolution must not fail on orphaned rows: %v", err)
	}
	appCapability, ok := capabilities[app.ID]
	if !ok {
		t.Fatal("Application should still resolve")
	}
	if _, ok := appCapability.Areas[area.ID]; ok {
		t.Error("Orphaned area rows must be skipped")
	}

	// Delete the application too; its rows are now orphans as well
	if _, err := f.db.Exec("DELETE FROM applications WHERE id = $1", app.ID); err != nil {
		t.Fatalf("Failed to delete application: %v", err)
	}
	capabilities, err = f.resolver.Resolve(ctx, []int64{role})
	if err != nil {
		t.Fatalf("Resolution must not fail on orphaned rows: %v", err)
	}
	if len(capabilities) != 0 {
		t.Errorf("Expected empty map after catalog deletion, got %v", capabilities)
	}
}

func TestCapabilityMap_AreaDenyDefault(t *testing.T) {
	var m CapabilityMap
	area := m.Area(1, 2)
	if area.Permission || area.CanRead {
		t.Errorf("Expected deny default, got %+v", area)
	}
	if area.DataAccessID != catalog.DefaultDataAccessTierID {
		t.Errorf("Expected default tier, got %d", area.DataAccessID)
	}
}

func TestCacheKey_Canonical(t *testing.T) {
	if CacheKey([]int64{3, 1, 7}) != "1,3,7" {
		t.Errorf("Expected sorted key, got %q", CacheKey([]int64{3, 1, 7}))
	}
	if CacheKey([]int64{1, 3, 7}) != CacheKey([]int64{7, 3, 1, 3}) {
		t.Error("Order and duplicates must not change the key")
	}
	if CacheKey(nil) != "" {
		t.Errorf("Expected empty key for no roles, got %q", CacheKey(nil))
	}
}
