package main

import (
	"context"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"tenant-service/internal/connection"
	"tenant-service/internal/handler"
	"tenant-service/internal/isolation"
	"tenant-service/internal/middleware"
	"tenant-service/internal/model"
	"tenant-service/internal/quota"
	"tenant-service/internal/ratelimit"
	"tenant-service/internal/security"
	"tenant-service/internal/tenant"
	"tenant-service/pkg/config"
	"tenant-service/pkg/database"
	"tenant-service/pkg/jwtutil"
	"tenant-service/pkg/logger"
	"tenant-service/prometheus"
)

func main() {
	// Load configuration from .env file and environment variables
	cfg, err := config.Load()
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}

	// Initialize logger with config
	if err := logger.InitLogger(&logger.LogConfig{
		Level:       cfg.Log.Level,
		Environment: cfg.Server.Env,
		ServiceName: "tenant-service",
	}); err != nil {
		stdlog.Fatalf("Failed to initialize logger: %v", err)
	}
	log := logger.GetLogger()
	defer log.Sync()
	log.Info("Starting tenant service...", cfg.LogConfig()...)

	// Connect to the shared directory database
	db, err := database.Open(database.DBConfig{
		DSN:             cfg.DB.GetDSN(),
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
		LogLevel:        cfg.DB.LogLevel,
	})
	if err != nil {
		log.Fatal("Failed to connect to directory database", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		log.Fatal("Failed to migrate directory schema", zap.Error(err))
	}
	log.Info("Directory database ready")

	// Per-tenant connection manager, dialing dedicated databases on demand
	connections := connection.NewManager(db, connection.PostgresOpener, connection.PoolConfig{
		MinPoolSize: cfg.TenantDB.MinPoolSize,
		MaxPoolSize: cfg.TenantDB.MaxPoolSize,
		IdleTimeout: cfg.TenantDB.IdleTimeout,
	}, log)
	defer connections.CloseAll()
	registerMigrations(connections.Migrations())

	// Directory store, with the connection manager provisioning tenant storage
	store := tenant.NewStore(db, connections, log)

	jwtUtil := jwtutil.New(&cfg.JWT)

	resolver := tenant.NewResolver(store, cfg.Platform.BaseDomain, cfg.Platform.SystemEndpoints, log)
	isolationEnforcer := isolation.NewEnforcer(connections, store, log)
	securityEnforcer := security.NewEnforcer(log)
	quotaGuard := quota.NewGuard(store, log)
	limiter := ratelimit.New(cfg.Limiter.SweepInterval, log)
	defer limiter.Stop()

	pipeline := middleware.NewPipeline(resolver, isolationEnforcer, securityEnforcer, quotaGuard, limiter, log)
	tenantHandler := handler.NewTenantHandler(store, jwtUtil)

	// Initialize Echo framework
	e := echo.New()
	e.HideBanner = true

	// Apply global middleware - order matters
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	e.Use(middleware.RequestIDMiddleware())
	e.Use(logger.Middleware())
	e.Use(prometheus.MetricsMiddleware())
	e.Use(middleware.ClaimsMiddleware(jwtUtil))
	e.Use(pipeline.Middleware())

	// System routes - served without a tenant context
	e.GET("/health", handler.HealthCheck)
	e.GET("/metrics", handler.MetricsHandler)

	// Admin lifecycle surface, also on the system allow-list
	admin := e.Group("/admin/tenants")
	admin.POST("", tenantHandler.CreateTenant)
	admin.GET("/:id", tenantHandler.GetTenant)
	admin.PATCH("/:id/config", tenantHandler.UpdateConfig)
	admin.POST("/:id/plan", tenantHandler.ChangePlan)
	admin.POST("/:id/usage", tenantHandler.RecordUsage)
	admin.POST("/:id/domains", tenantHandler.AddDomain)
	admin.POST("/:id/domains/verify", tenantHandler.VerifyDomain)
	admin.POST("/:id/suspend", tenantHandler.SuspendTenant)
	admin.POST("/:id/activate", tenantHandler.ActivateTenant)
	admin.POST("/:id/api-keys", tenantHandler.GenerateAPIKey)

	// Start server with graceful shutdown
	go func() {
		port := cfg.Server.Port
		log.Info("Starting server", zap.String("port", port))
		if err := e.Start(":" + port); err != nil {
			log.Info("Server stopped", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		log.Error("Forced shutdown", zap.Error(err))
	}
}

// registerMigrations declares the per-tenant schema versions applied to
// tenant storage after provisioning.
func registerMigrations(migrator *connection.Migrator) {
	migrator.Register(connection.Migration{
		Version: 1,
		Name:    "project_archived_flag",
		Run: func(ctx context.Context, db *gorm.DB, t *model.Tenant) error {
			table := connection.TableFor(t, "projects")
			return db.WithContext(ctx).Exec(fmt.Sprintf(
				"ALTER TABLE %s ADD COLUMN IF NOT EXISTS archived boolean NOT NULL DEFAULT false", table,
			)).Error
		},
	})
	migrator.Register(connection.Migration{
		Version: 2,
		Name:    "document_content_type",
		Run: func(ctx context.Context, db *gorm.DB, t *model.Tenant) error {
			table := connection.TableFor(t, "documents")
			return db.WithContext(ctx).Exec(fmt.Sprintf(
				"ALTER TABLE %s ADD COLUMN IF NOT EXISTS content_type varchar(100) NOT NULL DEFAULT 'text/plain'", table,
			)).Error
		},
	})
}
