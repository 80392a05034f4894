package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/frahmantamala/institution-management/internal"
	"github.com/frahmantamala/institution-management/internal/audit"
	auditPostgres "github.com/frahmantamala/institution-management/internal/audit/postgres"
	"github.com/frahmantamala/institution-management/internal/cache"
	"github.com/frahmantamala/institution-management/internal/cache/memory"
	"github.com/frahmantamala/institution-management/internal/cache/redis"
	"github.com/frahmantamala/institution-management/internal/catalog"
	catalogPostgres "github.com/frahmantamala/institution-management/internal/catalog/postgres"
	"github.com/frahmantamala/institution-management/internal/core/events"
	"github.com/frahmantamala/institution-management/internal/identity/keycloak"
	"github.com/frahmantamala/institution-management/internal/metrics"
	"github.com/frahmantamala/institution-management/internal/planscope"
	"github.com/frahmantamala/institution-management/internal/provisioning"
	"github.com/frahmantamala/institution-management/internal/role"
	rolePostgres "github.com/frahmantamala/institution-management/internal/role/postgres"
	"github.com/frahmantamala/institution-management/internal/user"
	userPostgres "github.com/frahmantamala/institution-management/internal/user/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// application holds the provisioning graph shared by the server and the CLI commands.
type application struct {
	Config *internal.Config
	Logger *slog.Logger

	SQL  *sql.DB
	SQLX *sqlx.DB
	Gorm *gorm.DB

	Cache      cache.Cache
	RedisCache *redis.Cache

	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Bus      *events.EventBus

	Institutions catalog.InstitutionRepository
	Roles        *role.Resolver
	Identity     *keycloak.Client
	Users        *user.Service
	Orchestrator *provisioning.Orchestrator
	Bulk         *provisioning.BulkCoordinator
}

func buildApplication(cfg *internal.Config, lg *slog.Logger) (*application, error) {
	sqlDB, err := initDB(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Warn),
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to open gorm session: %w", err)
	}
	sqlxDB := sqlx.NewDb(sqlDB, "pgx")

	app := &application{
		Config: cfg,
		Logger: lg,
		SQL:    sqlDB,
		SQLX:   sqlxDB,
		Gorm:   gormDB,
	}

	app.Cache, app.RedisCache = newCache(cfg.Cache, lg)

	app.Registry = prometheus.NewRegistry()
	app.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = metrics.NewMetrics(app.Registry)

	app.Bus = events.NewEventBus(lg)
	audit.NewRecorder(auditPostgres.NewAuditRepository(gormDB), lg).Register(app.Bus)
	auditor := audit.NewService(app.Bus, cfg.Provisioning.AuditEnabled, lg)

	app.Institutions = catalogPostgres.NewInstitutionRepository(sqlxDB)
	permissions := catalogPostgres.NewPermissionRepository(sqlxDB)
	scopes := planscope.NewResolver(catalogPostgres.NewPlanRepository(sqlxDB), app.Cache, cfg.Cache.GetTTL(), lg)

	app.Roles = role.NewResolver(gormDB, rolePostgres.NewRoleRepository(gormDB), lg)
	users := userPostgres.NewUserRepository(gormDB)

	app.Identity = keycloak.New(keycloak.Config{
		BaseURL:      cfg.IdentityProvider.BaseURL,
		AdminRealm:   cfg.IdentityProvider.AdminRealm,
		ClientID:     cfg.IdentityProvider.ClientID,
		ClientSecret: cfg.IdentityProvider.ClientSecret,
		Timeout:      cfg.IdentityProvider.GetTimeout(),
	}, &http.Client{Timeout: cfg.IdentityProvider.GetTimeout()}, app.Metrics, lg)

	app.Users = user.NewService(users, app.Institutions, app.Identity, auditor, lg)

	app.Orchestrator = provisioning.NewOrchestrator(provisioning.Dependencies{
		DB:           gormDB,
		Institutions: app.Institutions,
		Permissions:  permissions,
		Scopes:       scopes,
		Roles:        app.Roles,
		Users:        users,
		Identity:     app.Identity,
		Audit:        auditor,
		Metrics:      app.Metrics,
		Logger:       lg,
	})
	app.Bulk = provisioning.NewBulkCoordinator(app.Orchestrator, app.Roles, auditor,
		cfg.Provisioning.GetChunkSize(), app.Metrics, lg)

	return app, nil
}

// newCache returns the configured cache; the redis handle is nil for the memory driver.
func newCache(cfg internal.CacheConfig, lg *slog.Logger) (cache.Cache, *redis.Cache) {
	if cfg.Driver == "redis" {
		rc := redis.New(cfg.RedisAddr, cfg.RedisDB, cfg.Prefix, lg)
		return rc, rc
	}
	return memory.New(cfg.GetTTL()), nil
}

// Close drains pending audit writes before releasing connections.
func (a *application) Close(ctx context.Context) {
	if err := a.Bus.Wait(ctx); err != nil {
		a.Logger.Warn("audit events still pending at shutdown", "error", err)
	}
	if a.RedisCache != nil {
		if err := a.RedisCache.Close(); err != nil {
			a.Logger.Error("redis close error", "error", err)
		}
	}
	if err := a.SQL.Close(); err != nil {
		a.Logger.Error("database close error", "error", err)
	}
}

// initDB opens the pgx connection pool shared by sqlx and gorm.
func initDB(cfg internal.DatabaseConfig) (*sql.DB, error) {
	const driver = "pgx"

	dbConn, err := sql.Open(driver, cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	dbConn.SetMaxIdleConns(cfg.MaxIdleConns)
	dbConn.SetMaxOpenConns(cfg.MaxOpenConns)
	dbConn.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	dbConn.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := dbConn.Ping(); err != nil {
		_ = dbConn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return dbConn, nil
}
