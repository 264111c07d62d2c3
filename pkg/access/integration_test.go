//go:build integration
// +build integration

package access

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/platinummonkey/steward/pkg/auth"
	"github.com/platinummonkey/steward/pkg/catalog"
	"github.com/platinummonkey/steward/pkg/matrix"
	"github.com/platinummonkey/steward/pkg/resolver"
	"github.com/platinummonkey/steward/pkg/roles"
)

// setupPostgres starts a disposable PostgreSQL container and runs the
// real migrations against it, so the production DDL is what gets tested.
func setupPostgres(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	ctx := context.Background()

	provider, err := testcontainers.ProviderDocker.GetProvider()
	if err != nil {
		t.Skip("Docker/Podman not available, skipping integration tests")
	}
	defer provider.Close()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("steward_test"),
		tcpostgres.WithUsername("steward"),
		tcpostgres.WithPassword("steward_test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		t.Skipf("Failed to start PostgreSQL container: %v", err)
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)
	require.NoError(t, db.Ping())

	require.NoError(t, catalog.RunMigrations(ctx, db))
	require.NoError(t, roles.RunMigrations(ctx, db))
	require.NoError(t, matrix.RunMigrations(ctx, db))
	require.NoError(t, auth.RunMigrations(ctx, db))

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close database: %v", err)
		}
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := container.Terminate(cleanupCtx); err != nil {
			t.Errorf("Failed to terminate container: %v", err)
		}
	}

	return db, cleanup
}

func TestIntegration_ResolveAgainstPostgres(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()
	logger := testLogger()

	catalogStore := catalog.NewStore(db)
	require.NoError(t, catalogStore.EnsureDefaults(ctx))

	rolesStore := roles.NewStore(db)
	matrixStore := matrix.NewStore(db)
	cache := resolver.NewLRUCache(16, time.Minute, nil)
	matrixStore.SetInvalidator(cache)
	rolesStore.SetInvalidator(cache)
	capResolver := resolver.NewResolver(matrixStore, catalogStore, cache, logger, nil)

	admin, err := rolesStore.CreateRole(ctx, "Admin")
	require.NoError(t, err)

	app, err := catalogStore.GetApplicationByName(ctx, catalog.AdminApplicationName)
	require.NoError(t, err)
	area, err := catalogStore.GetAreaByName(ctx, app.ID, catalog.AreaSecurityRoles)
	require.NoError(t, err)

	_, err = matrixStore.UpsertApplicationPermission(ctx, admin.ID, app.ID, true)
	require.NoError(t, err)

	tr := true
	tier := int64(1)
	_, err = matrixStore.UpsertAreaPermission(ctx, admin.ID, area.ID, matrix.AreaPermissionPatch{
		Permission:   &tr,
		DataAccessID: &tier,
		CanRead:      &tr,
		CanUpdate:    &tr,
	})
	require.NoError(t, err)

	capabilities, err := capResolver.Resolve(ctx, []int64{admin.ID})
	require.NoError(t, err)

	got := capabilities.Area(app.ID, area.ID)
	require.True(t, got.CanRead)
	require.True(t, got.CanUpdate)
	require.False(t, got.CanDelete)
	require.Equal(t, int64(1), got.DataAccessID)

	// Deleting the role cascades its permission rows and invalidates
	require.NoError(t, rolesStore.DeleteRole(ctx, admin.ID))

	capabilities, err = capResolver.Resolve(ctx, []int64{admin.ID})
	require.NoError(t, err)
	require.Empty(t, capabilities)
}

func TestIntegration_PartialUpdateOnPostgres(t *testing.T) {
	db, cleanup := setupPostgres(t)
	defer cleanup()

	ctx := context.Background()

	catalogStore := catalog.NewStore(db)
	require.NoError(t, catalogStore.EnsureDefaults(ctx))

	rolesStore := roles.NewStore(db)
	matrixStore := matrix.NewStore(db)

	role, err := rolesStore.CreateRole(ctx, "Editor")
	require.NoError(t, err)
	app, err := catalogStore.CreateApplication(ctx, "CRM", "")
	require.NoError(t, err)
	area, err := catalogStore.CreateArea(ctx, app.ID, "Contacts")
	require.NoError(t, err)

	tr := true
	tier := int64(4)
	_, err = matrixStore.UpsertAreaPermission(ctx, role.ID, area.ID, matrix.AreaPermissionPatch{
		Permission:   &tr,
		DataAccessID: &tier,
		CanCreate:    &tr,
	})
	require.NoError(t, err)

	// Concurrent-safe partial update must not clobber the tier or create flag
	updated, err := matrixStore.UpsertAreaPermission(ctx, role.ID, area.ID, matrix.AreaPermissionPatch{
		CanRead: &tr,
	})
	require.NoError(t, err)
	require.True(t, updated.CanRead)
	require.True(t, updated.CanCreate)
	require.Equal(t, int64(4), updated.DataAccessID)
	require.True(t, updated.Permission)
}
