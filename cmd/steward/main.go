package main

import (
	"context"
	"database/sql"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/platinummonkey/steward/pkg/access"
	"github.com/platinummonkey/steward/pkg/audit"
	"github.com/platinummonkey/steward/pkg/auth"
	"github.com/platinummonkey/steward/pkg/catalog"
	"github.com/platinummonkey/steward/pkg/config"
	"github.com/platinummonkey/steward/pkg/matrix"
	"github.com/platinummonkey/steward/pkg/middleware"
	"github.com/platinummonkey/steward/pkg/observability"
	"github.com/platinummonkey/steward/pkg/resolver"
	"github.com/platinummonkey/steward/pkg/roles"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info("Starting steward authorization service")

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Database.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		logger.WithError(err).Error("Failed to ping database")
		os.Exit(1)
	}

	if err := runMigrations(ctx, db); err != nil {
		logger.WithError(err).Error("Failed to run migrations")
		os.Exit(1)
	}

	catalogStore := catalog.NewStore(db)
	if err := catalogStore.EnsureDefaults(ctx); err != nil {
		logger.WithError(err).Error("Failed to seed catalog defaults")
		os.Exit(1)
	}

	auditLogger, err := audit.NewDBLogger(db)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize audit logger")
		os.Exit(1)
	}

	var metrics *observability.Metrics
	if cfg.Observability.MetricsEnabled {
		metrics = observability.NewMetrics(prometheus.NewRegistry())
	}

	var redisClient *redis.Client
	var cache resolver.Cache
	if cfg.Redis.URL != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.URL,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Error("Failed to ping redis")
			os.Exit(1)
		}
		cache = resolver.NewRedisCache(redisClient, cfg.Cache.TTL, logger, metrics)
		logger.Info("Using redis capability cache")
	} else {
		cache = resolver.NewLRUCache(cfg.Cache.MaxEntries, cfg.Cache.TTL, metrics)
		logger.Info("Using in-process capability cache")
	}

	rolesStore := roles.NewStore(db)
	rolesStore.SetInvalidator(cache)
	matrixStore := matrix.NewStore(db)
	matrixStore.SetInvalidator(cache)
	userStore := auth.NewUserStore(db)
	tokenManager := auth.NewTokenManager(db)

	capResolver := resolver.NewResolver(matrixStore, catalogStore, cache, logger, metrics)
	enforcer := access.NewEnforcer(capResolver, catalogStore, auditLogger, logger, metrics)

	catalogHandlers := catalog.NewHandlers(catalogStore, logger)
	rolesHandlers := roles.NewHandlers(rolesStore, auditLogger, logger)
	authHandlers := auth.NewHandlers(userStore, tokenManager, auditLogger, logger)
	accessHandlers := access.NewHandlers(capResolver, matrixStore, catalogStore, auditLogger, logger, metrics)
	authenticator := middleware.NewAuthenticator(tokenManager, userStore, logger)

	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(authenticator.Middleware)

	// Any authenticated caller may read its own capabilities.
	accessHandlers.RegisterCapabilityRoutes(api)

	// Management surfaces require update capability within the
	// corresponding admin area.
	securityRoles := api.NewRoute().Subrouter()
	securityRoles.Use(enforcer.RequireArea(catalog.AdminApplicationName, catalog.AreaSecurityRoles, matrix.ActionUpdate))
	accessHandlers.RegisterMatrixRoutes(securityRoles)
	rolesHandlers.RegisterRoutes(securityRoles)

	users := api.NewRoute().Subrouter()
	users.Use(enforcer.RequireArea(catalog.AdminApplicationName, catalog.AreaUsers, matrix.ActionUpdate))
	authHandlers.RegisterRoutes(users)

	catalogRoutes := api.NewRoute().Subrouter()
	catalogRoutes.Use(enforcer.RequireArea(catalog.AdminApplicationName, catalog.AreaApplications, matrix.ActionUpdate))
	catalogHandlers.RegisterRoutes(catalogRoutes)

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthChecker := observability.NewHealthChecker(db, redisClient)
	healthRouter := mux.NewRouter()
	healthRouter.HandleFunc("/healthz", healthChecker.LivenessHandler).Methods("GET")
	healthRouter.HandleFunc("/readyz", healthChecker.ReadinessHandler).Methods("GET")
	if metrics != nil {
		healthRouter.Handle("/metrics", metrics.Handler()).Methods("GET")
	}
	healthServer := &http.Server{
		Addr:    net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler: healthRouter,
	}

	shutdown := observability.NewShutdownManager(logger, cfg.Server.ShutdownTimeout, apiServer, healthServer)
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return auditLogger.Close()
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		if redisClient != nil {
			return redisClient.Close()
		}
		return nil
	})
	shutdown.RegisterShutdownFunc(func(ctx context.Context) error {
		return db.Close()
	})

	var g errgroup.Group
	g.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	healthChecker.SetReady(true)
	g.Go(shutdown.WaitForShutdown)

	if err := g.Wait(); err != nil {
		logger.WithError(err).Error("Service exited with error")
		os.Exit(1)
	}
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	if err := catalog.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := roles.RunMigrations(ctx, db); err != nil {
		return err
	}
	if err := matrix.RunMigrations(ctx, db); err != nil {
		return err
	}
	return auth.RunMigrations(ctx, db)
}
