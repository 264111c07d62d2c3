package resolver

import (
	"context"
	"fmt"

	"github.com/platinummonkey/steward/pkg/catalog"
	"github.com/platinummonkey/steward/pkg/matrix"
	"github.com/platinummonkey/steward/pkg/observability"
)

// MatrixStore is the slice of the permission matrix the resolver reads
type MatrixStore interface {
	GetAreaPermissionsForRoles(ctx context.Context, roleIDs []int64) (map[int64][]matrix.AreaPermission, error)
	GetApplicationPermissionsForRoles(ctx context.Context, roleIDs []int64) (map[int64][]matrix.ApplicationPermission, error)
}

// CatalogStore is the slice of the catalog the resolver reads
type CatalogStore interface {
	ListApplications(ctx context.Context) ([]*catalog.Application, error)
	ListAreas(ctx context.Context, applicationID *int64) ([]*catalog.Area, error)
}

// Cache stores resolved capability maps keyed by canonical role set
type Cache interface {
	Get(ctx context.Context, key string) (CapabilityMap, bool)
	Add(ctx context.Context, key string, roleIDs []int64, capabilities CapabilityMap)
	InvalidateRole(ctx context.Context, roleID int64)
}

// Resolver computes effective capabilities from the permission matrix.
// Resolution is a pure function of the matrix and the catalog; the cache
// is only ever stale for the instant between a matrix write and its
// invalidation callback.
type Resolver struct {
	matrix  MatrixStore
	catalog CatalogStore
	cache   Cache
	logger  *observability.Logger
	metrics *observability.Metrics
}

// NewResolver creates a resolver. cache and metrics may be nil.
func NewResolver(matrixStore MatrixStore, catalogStore CatalogStore, cache Cache, logger *observability.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{
		matrix:  matrixStore,
		catalog: catalogStore,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}
}

// Resolve computes the capability map for a principal holding the given
// roles. Any error fails closed: callers must treat an error as no
// permissions, never as a grant.
func (r *Resolver) Resolve(ctx context.Context, roleIDs []int64) (CapabilityMap, error) {
	key := CacheKey(roleIDs)
	if r.cache != nil {
		if capabilities, ok := r.cache.Get(ctx, key); ok {
			return capabilities, nil
		}
	}

	capabilities, err := r.resolve(ctx, roleIDs)
	if err != nil {
		if r.metrics != nil {
			r.metrics.ResolutionsTotal.WithLabelValues("error").Inc()
		}
		return nil, err
	}
	if r.metrics != nil {
		r.metrics.ResolutionsTotal.WithLabelValues("ok").Inc()
	}

	if r.cache != nil {
		r.cache.Add(ctx, key, roleIDs, capabilities)
	}
	return capabilities, nil
}

func (r *Resolver) resolve(ctx context.Context, roleIDs []int64) (CapabilityMap, error) {
	capabilities := make(CapabilityMap)
	if len(roleIDs) == 0 {
		return capabilities, nil
	}

	apps, err := r.catalog.ListApplications(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load applications: %w", err)
	}
	appsByID := make(map[int64]*catalog.Application, len(apps))
	for _, app := range apps {
		appsByID[app.ID] = app
	}

	areas, err := r.catalog.ListAreas(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load areas: %w", err)
	}
	areasByID := make(map[int64]*catalog.Area, len(areas))
	for _, area := range areas {
		areasByID[area.ID] = area
	}

	appPerms, err := r.matrix.GetApplicationPermissionsForRoles(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load application permissions: %w", err)
	}
	areaPerms, err := r.matrix.GetAreaPermissionsForRoles(ctx, roleIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load area permissions: %w", err)
	}

	// Application gates first: a closed or absent gate hides the
	// application and everything in it.
	for appID, perms := range appPerms {
		app, known := appsByID[appID]
		if !known {
			r.logger.WithField("application_id", appID).
				Warn("Skipping permission rows for deleted application")
			continue
		}
		if !matrix.UnionApplicationPermissions(perms) {
			continue
		}
		capabilities[appID] = ApplicationCapability{
			ApplicationID: appID,
			Name:          app.Name,
			Permission:    true,
			Areas:         make(map[int64]AreaCapability),
		}
	}

	for areaID, perms := range areaPerms {
		area, known := areasByID[areaID]
		if !known {
			r.logger.WithField("area_id", areaID).
				Warn("Skipping permission rows for deleted area")
			continue
		}

		appCapability, reachable := capabilities[area.ApplicationID]
		if !reachable {
			// Application gate closed; area rows are unreachable
			continue
		}

		union := matrix.UnionAreaPermissions(areaID, perms)
		if !union.Permission {
			continue
		}

		appCapability.Areas[areaID] = AreaCapability{
			AreaID:       areaID,
			AreaName:     area.Name,
			Permission:   true,
			DataAccessID: union.DataAccessID,
			CanRead:      union.CanRead,
			CanCreate:    union.CanCreate,
			CanUpdate:    union.CanUpdate,
			CanDelete:    union.CanDelete,
		}
	}

	return capabilities, nil
}
