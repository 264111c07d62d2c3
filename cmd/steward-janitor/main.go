package main

import (
	"context"
	"database/sql"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/steward/pkg/audit"
	"github.com/platinummonkey/steward/pkg/auth"
	"github.com/platinummonkey/steward/pkg/config"
	"github.com/platinummonkey/steward/pkg/matrix"
)

var (
	dbURL      = flag.String("db-url", getEnv("STEWARD_POSTGRES_URL", "postgres://localhost/steward?sslmode=disable"), "PostgreSQL connection URL")
	configDir  = flag.String("config-dir", ".", "Directory to search for steward-janitor.yaml")
	runOnce    = flag.Bool("run-once", false, "Run all enabled jobs once and exit")
	jobTimeout = flag.Duration("job-timeout", 5*time.Minute, "Timeout for a single maintenance job")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.LoadJanitorConfigFromDir(*configDir)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load janitor configuration")
	}

	db, err := sql.Open("postgres", *dbURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.WithError(err).Fatal("Failed to ping database")
	}

	j := &janitor{
		logger:     logger,
		cfg:        cfg,
		auditStore: audit.NewStore(db),
		matrix:     matrix.NewStore(db),
		tokens:     auth.NewTokenManager(db),
		timeout:    *jobTimeout,
	}

	if *runOnce {
		j.runAll()
		return
	}

	c := cron.New()

	if cfg.Audit.Enabled {
		if _, err := c.AddFunc(cfg.Audit.Schedule, j.pruneAuditLog); err != nil {
			logger.WithError(err).Fatal("Failed to schedule audit pruning")
		}
		logger.WithField("schedule", cfg.Audit.Schedule).Info("Scheduled audit log pruning")
	}
	if cfg.Orphans.Enabled {
		if _, err := c.AddFunc(cfg.Orphans.Schedule, j.sweepOrphans); err != nil {
			logger.WithError(err).Fatal("Failed to schedule orphan sweep")
		}
		logger.WithField("schedule", cfg.Orphans.Schedule).Info("Scheduled orphaned permission sweep")
	}
	if cfg.Tokens.Enabled {
		if _, err := c.AddFunc(cfg.Tokens.Schedule, j.cleanupTokens); err != nil {
			logger.WithError(err).Fatal("Failed to schedule token cleanup")
		}
		logger.WithField("schedule", cfg.Tokens.Schedule).Info("Scheduled expired token cleanup")
	}

	c.Start()
	logger.Info("Steward janitor started")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down gracefully...")
	ctx := c.Stop()
	<-ctx.Done()
	logger.Info("Janitor stopped")
}

type janitor struct {
	logger     *logrus.Logger
	cfg        *config.JanitorConfig
	auditStore *audit.Store
	matrix     *matrix.Store
	tokens     *auth.TokenManager
	timeout    time.Duration
}

func (j *janitor) runAll() {
	if j.cfg.Audit.Enabled {
		j.pruneAuditLog()
	}
	if j.cfg.Orphans.Enabled {
		j.sweepOrphans()
	}
	if j.cfg.Tokens.Enabled {
		j.cleanupTokens()
	}
}

func (j *janitor) pruneAuditLog() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	cutoff := time.Now().UTC().Add(-j.cfg.AuditRetention())
	pruned, err := j.auditStore.PruneOlderThan(ctx, cutoff)
	if err != nil {
		j.logger.WithError(err).Error("Audit log pruning failed")
		return
	}
	j.logger.WithFields(logrus.Fields{
		"pruned": pruned,
		"cutoff": cutoff.Format(time.RFC3339),
	}).Info("Audit log pruning completed")
}

func (j *janitor) sweepOrphans() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	areaRows, appRows, err := j.matrix.DeleteOrphanedRows(ctx)
	if err != nil {
		j.logger.WithError(err).Error("Orphaned permission sweep failed")
		return
	}
	if areaRows > 0 || appRows > 0 {
		j.logger.WithFields(logrus.Fields{
			"area_rows":        areaRows,
			"application_rows": appRows,
		}).Info("Removed orphaned permission rows")
	}
}

func (j *janitor) cleanupTokens() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	cutoff := time.Now().UTC().Add(-j.cfg.TokenGrace())
	removed, err := j.tokens.CleanupExpiredTokens(ctx, cutoff)
	if err != nil {
		j.logger.WithError(err).Error("Expired token cleanup failed")
		return
	}
	if removed > 0 {
		j.logger.WithField("removed", removed).Info("Removed expired API tokens")
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
