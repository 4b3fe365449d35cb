package main

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sma-wellbeing-api/api/swagger"
	"github.com/noah-isme/sma-wellbeing-api/internal/handler"
	"github.com/noah-isme/sma-wellbeing-api/internal/middleware"
	"github.com/noah-isme/sma-wellbeing-api/internal/models"
	"github.com/noah-isme/sma-wellbeing-api/internal/repository"
	"github.com/noah-isme/sma-wellbeing-api/internal/service"
	rediscache "github.com/noah-isme/sma-wellbeing-api/pkg/cache"
	"github.com/noah-isme/sma-wellbeing-api/pkg/config"
	"github.com/noah-isme/sma-wellbeing-api/pkg/database"
	"github.com/noah-isme/sma-wellbeing-api/pkg/export"
	"github.com/noah-isme/sma-wellbeing-api/pkg/jobs"
	"github.com/noah-isme/sma-wellbeing-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-wellbeing-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-wellbeing-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-wellbeing-api/pkg/storage"
)

// @title SMA Wellbeing API
// @version 0.1.0
// @description School wellbeing analytics and reporting service
// @BasePath /api/v1
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close() //nolint:errcheck

	// Redis is optional; the report falls through to the database without it.
	redisClient, err := rediscache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, report caching disabled", "error", err)
		redisClient = nil
	}

	metricsSvc := service.NewMetricsService()
	cacheRepo := repository.NewCacheRepository(redisClient, logr)
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Wellbeing.CacheTTL, logr, cfg.Wellbeing.CacheEnabled)

	validate := validator.New()
	userRepo := repository.NewUserRepository(db)
	authSvc := service.NewAuthService(userRepo, validate, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})

	wellbeingRepo := repository.NewWellbeingRepository(db)
	wellbeingSvc := service.NewWellbeingService(service.WellbeingServiceParams{
		Repo:    wellbeingRepo,
		Cache:   cacheSvc,
		Metrics: metricsSvc,
		Logger:  logr,
		Config: service.WellbeingServiceConfig{
			CacheEnabled: cfg.Wellbeing.CacheEnabled,
			CacheTTL:     cfg.Wellbeing.CacheTTL,
		},
	})

	authHandler := handler.NewAuthHandler(authSvc)
	wellbeingHandler := handler.NewWellbeingHandler(wellbeingSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	wellbeing := protected.Group("/wellbeing")
	wellbeing.GET("/analytics",
		middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin),
		wellbeingHandler.Analytics)
	protected.GET("/system/metrics",
		middleware.RequireRoles(models.RoleSuperAdmin),
		metricsHandler.Snapshot)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Exports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Exports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to init export storage", "error", err)
		}
		signer := storage.NewSignedURLSigner(cfg.Exports.SignedURLSecret, cfg.Exports.SignedURLTTL)
		exportSvc := service.NewExportService(wellbeingSvc, store, signer, service.ExportConfig{
			APIPrefix: cfg.APIPrefix,
			ResultTTL: cfg.Exports.SignedURLTTL,
		}, logr, export.NewCSVExporter(), export.NewPDFExporter())

		exportRepo := repository.NewExportJobRepository(db)
		worker := service.NewExportWorker(exportRepo, exportSvc, cfg.Exports.WorkerRetries, logr)
		queue := jobs.NewQueue("wellbeing-exports", worker.Handle, jobs.QueueConfig{
			Workers:    cfg.Exports.WorkerConcurrency,
			MaxRetries: cfg.Exports.WorkerRetries,
			Logger:     logr,
		})
		queue.Start(ctx)
		defer queue.Stop()

		exportJobSvc := service.NewExportJobService(exportRepo, queue, exportSvc, logr, service.ExportJobServiceConfig{
			ResultTTL:       cfg.Exports.SignedURLTTL,
			CleanupInterval: cfg.Exports.CleanupInterval,
			MaxRetries:      cfg.Exports.WorkerRetries,
		})
		exportJobSvc.RecoverPendingJobs(ctx)
		exportJobSvc.StartCleanup(ctx)

		exportHandler := handler.NewExportHandler(exportJobSvc)
		wellbeing.POST("/exports",
			middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin),
			exportHandler.Create)
		wellbeing.GET("/exports/:id",
			middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin),
			exportHandler.Status)
		// Download authenticates with the signed token, not a session.
		api.GET("/wellbeing/exports/download/:token", exportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)
	if err := r.Run(addr); err != nil {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
