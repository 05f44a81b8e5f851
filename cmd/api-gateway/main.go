package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/store-incident-api/api/swagger"
	"github.com/noah-isme/store-incident-api/internal/handler"
	"github.com/noah-isme/store-incident-api/internal/middleware"
	"github.com/noah-isme/store-incident-api/internal/models"
	"github.com/noah-isme/store-incident-api/internal/repository"
	"github.com/noah-isme/store-incident-api/internal/service"
	"github.com/noah-isme/store-incident-api/internal/validation"
	"github.com/noah-isme/store-incident-api/pkg/cache"
	"github.com/noah-isme/store-incident-api/pkg/config"
	"github.com/noah-isme/store-incident-api/pkg/database"
	"github.com/noah-isme/store-incident-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/store-incident-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/store-incident-api/pkg/middleware/requestid"
	"github.com/noah-isme/store-incident-api/pkg/migrations"
)

// @title Store Incident API
// @version 1.0.0
// @description Back-office API for store incident phone-call reports
// @BasePath /api/v1
// @schemes http https
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

	if err := run(cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logr *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer db.Close()

	if cfg.Migrations.Auto {
		if err := migrations.NewRunner(db.DB, logr).Up(ctx); err != nil {
			return err
		}
	}

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, caching disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logr.Warn("unknown timezone, using UTC", zap.String("timezone", cfg.Timezone), zap.Error(err))
		location = time.UTC
	}

	reportRepo := repository.NewReportRepository(db)
	referenceRepo := repository.NewReferenceRepository(db)
	userRepo := repository.NewUserRepository(db)
	activityRepo := repository.NewActivityLogRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	metricsSvc := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Reports.CacheTTL, logr, redisClient != nil)
	referenceSvc := service.NewReferenceService(referenceRepo, metricsSvc, logr)
	if _, err := referenceSvc.Refresh(ctx); err != nil {
		logr.Warn("initial reference data load failed", zap.Error(err))
	}

	notifier := service.NewNotifierService(reportRepo, cacheSvc, metricsSvc, logr, service.NotifierConfig{
		Enabled:    cfg.Webhook.Enabled,
		URL:        cfg.Webhook.URL,
		Timeout:    cfg.Webhook.Timeout,
		Workers:    cfg.Webhook.Workers,
		Retries:    cfg.Webhook.Retries,
		RetryDelay: cfg.Webhook.RetryDelay,
	})
	notifier.Start(ctx)
	defer notifier.Stop()

	leaf := validator.New()
	reportSvc := service.NewReportService(
		reportRepo,
		userRepo,
		referenceSvc,
		validation.New(leaf, userRepo),
		cacheSvc,
		notifier,
		activityRepo,
		metricsSvc,
		logr,
		service.ReportServiceConfig{
			SchemaVersion: cfg.Reports.SchemaVersion,
			Location:      location,
			CacheTTL:      cfg.Reports.CacheTTL,
		},
	)
	authSvc := service.NewAuthService(userRepo, activityRepo, leaf, logr, service.AuthConfig{
		AccessTokenSecret: cfg.JWT.Secret,
		AccessTokenExpiry: cfg.JWT.Expiration,
		Issuer:            cfg.JWT.Issuer,
	})

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS))
	r.Use(middleware.Metrics(metricsSvc))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(metricsSvc, db)
	r.GET("/health", metricsHandler.Health)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	registerRoutes(r.Group(cfg.APIPrefix), routeDeps{
		auth:      handler.NewAuthHandler(authSvc),
		reports:   handler.NewReportHandler(reportSvc),
		reference: handler.NewReferenceHandler(referenceSvc),
		metrics:   metricsHandler,
		tokens:    authSvc,
		activity:  activityRepo,
		logger:    logr,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

type routeDeps struct {
	auth      *handler.AuthHandler
	reports   *handler.ReportHandler
	reference *handler.ReferenceHandler
	metrics   *handler.MetricsHandler
	tokens    middleware.TokenValidator
	activity  middleware.ActivityWriter
	logger    *zap.Logger
}

func registerRoutes(api *gin.RouterGroup, d routeDeps) {
	api.POST("/auth/login", d.auth.Login)

	authed := api.Group("", middleware.JWT(d.tokens))
	audit := func(action string) gin.HandlerFunc {
		return middleware.Audit(d.activity, d.logger, action, "reports")
	}

	reports := authed.Group("/reports")
	reports.GET("", d.reports.List)
	reports.GET("/:id", d.reports.Get)
	reports.GET("/:id/activity", d.reports.History)
	reports.POST("", audit(models.ActivityReportCreate), d.reports.Create)
	reports.POST("/import", audit(models.ActivityReportImport), d.reports.Import)
	reports.PUT("/:id", audit(models.ActivityReportUpdate), d.reports.Update)
	reports.PUT("/:id/softDelete", audit(models.ActivityReportSoftDelete), d.reports.SoftDelete)
	reports.PUT("/:id/softDeleteUndo", audit(models.ActivityReportUndoDelete), d.reports.UndoSoftDelete)
	reports.DELETE("/:id", audit(models.ActivityReportHardDelete), d.reports.HardDelete)

	authed.GET("/reference", d.reference.Get)
	authed.GET("/metrics/summary", middleware.RequireRoles(models.RoleAdmin, models.RoleSuperAdmin), d.metrics.Summary)
}
