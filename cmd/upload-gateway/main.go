package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/stylizr/upload-gateway/api/swagger"
	"github.com/stylizr/upload-gateway/internal/filesec"
	"github.com/stylizr/upload-gateway/internal/handler"
	"github.com/stylizr/upload-gateway/internal/middleware"
	"github.com/stylizr/upload-gateway/internal/quarantine"
	"github.com/stylizr/upload-gateway/internal/ratelimit"
	"github.com/stylizr/upload-gateway/internal/repository"
	"github.com/stylizr/upload-gateway/internal/seclog"
	"github.com/stylizr/upload-gateway/internal/service"
	"github.com/stylizr/upload-gateway/pkg/cache"
	"github.com/stylizr/upload-gateway/pkg/config"
	"github.com/stylizr/upload-gateway/pkg/database"
	"github.com/stylizr/upload-gateway/pkg/logger"
	corsmiddleware "github.com/stylizr/upload-gateway/pkg/middleware/cors"
	reqidmiddleware "github.com/stylizr/upload-gateway/pkg/middleware/requestid"
	"github.com/stylizr/upload-gateway/pkg/storage"
)

// @title Stylizr Upload Gateway
// @version 1.0.0
// @description Secure photo upload intake for the stylization pipeline
// @BasePath /api/v1
// @schemes http

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

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("database connection failed", "error", err)
	}
	defer db.Close() //nolint:errcheck

	blobs, err := storage.NewLocalStorage(cfg.Upload.StorageDir)
	if err != nil {
		logr.Sugar().Fatalw("storage init failed", "error", err)
	}

	secLog, err := seclog.NewLogger(seclog.Config{
		Dir:              cfg.SecurityLog.Dir,
		Application:      cfg.SecurityLog.Application,
		MaxFileSizeBytes: cfg.SecurityLog.MaxFileSizeBytes,
		MaxFiles:         cfg.SecurityLog.MaxFiles,
	}, logr)
	if err != nil {
		logr.Sugar().Fatalw("security log init failed", "error", err)
	}
	defer secLog.Close() //nolint:errcheck

	alerter := seclog.NewAlerter(seclog.AlertConfig{
		Window:           cfg.Alerts.Window,
		CriticalEvents:   cfg.Alerts.CriticalEvents,
		SuspiciousEvents: cfg.Alerts.SuspiciousEvents,
		FailedUploads:    cfg.Alerts.FailedUploads,
		MinInterval:      cfg.Alerts.MinAlertInterval,
		DispatchWorkers:  cfg.Alerts.DispatchWorkers,
	}, nil, logr)
	alerter.Start(ctx)
	defer alerter.Stop()
	secLog.AddSink(alerter.Observe)

	quarantineStore, err := quarantine.NewStore(quarantine.Config{
		Dir:               cfg.Quarantine.Dir,
		MaxRetention:      cfg.Quarantine.MaxRetention,
		SweepInterval:     cfg.Quarantine.SweepInterval,
		MaxTotalSizeBytes: cfg.Quarantine.MaxTotalSizeBytes,
	}, logr)
	if err != nil {
		logr.Sugar().Fatalw("quarantine init failed", "error", err)
	}
	quarantineStore.Start(ctx)
	defer quarantineStore.Stop()

	scanner := filesec.NewScanner(filesec.ScannerConfig{
		EntropyThreatThreshold:  cfg.Scanner.EntropyThreatThreshold,
		EntropyWarningThreshold: cfg.Scanner.EntropyWarningThreshold,
		EntropyWindowBytes:      cfg.Scanner.EntropyWindowBytes,
		CommandTokenThreatCount: cfg.Scanner.CommandTokenThreatCount,
		NullByteWarningRatio:    cfg.Scanner.NullByteWarningRatio,
		LargeFileWarningBytes:   cfg.Scanner.LargeFileWarningBytes,
	}, logr)

	validatorCfg := filesec.DefaultValidatorConfig()
	validatorCfg.Risk = filesec.RiskConfig{
		HighRiskScore:   cfg.Scanner.HighRiskScore,
		MediumRiskScore: cfg.Scanner.MediumRiskScore,
	}
	validatorCfg.QuarantineEnabled = cfg.Scanner.QuarantineEnabled
	validator := filesec.NewValidator(scanner, quarantineStore, validatorCfg, logr)

	var limiterStore ratelimit.Store
	if cfg.RateLimit.Store == "redis" {
		redisClient, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			logr.Sugar().Fatalw("redis connection failed", "error", err)
		}
		defer redisClient.Close() //nolint:errcheck
		limiterStore = ratelimit.NewRedisStore(redisClient)
	} else {
		limiterStore = ratelimit.NewMemoryStore()
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		Burst:              tierFromConfig(cfg.RateLimit.Burst),
		LargeFile:          tierFromConfig(cfg.RateLimit.LargeFile),
		Suspicious:         tierFromConfig(cfg.RateLimit.Suspicious),
		General:            tierFromConfig(cfg.RateLimit.General),
		PerUser:            tierFromConfig(cfg.RateLimit.PerUser),
		LargeFileThreshold: cfg.RateLimit.LargeFileThreshold,
		SuspiciousFor:      cfg.RateLimit.SuspiciousFor,
		CleanupInterval:    cfg.RateLimit.CleanupInterval,
	}, limiterStore, logr)
	limiter.Start(ctx)
	defer limiter.Stop()

	metrics := service.NewMetricsService()
	uploadRepo := repository.NewUploadRepository(db)
	uploadSvc := service.NewUploadService(validator, limiter, blobs, uploadRepo, secLog, metrics, logr)
	reportSvc := service.NewReportService(secLog, logr)

	uploadHandler := handler.NewUploadHandler(uploadSvc, cfg.Upload.TempDir, cfg.Upload.MaxFileSizeBytes, logr)
	quarantineHandler := handler.NewQuarantineHandler(quarantineStore, secLog, logr)
	reportHandler := handler.NewReportHandler(reportSvc)

	go publishQuarantineUsage(ctx, quarantineStore, metrics, logr)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metrics))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.Use(middleware.OptionalJWT(cfg.JWT.Secret))
	{
		api.POST("/uploads", uploadHandler.Create)
		api.GET("/uploads", uploadHandler.List)
		api.GET("/uploads/:id", uploadHandler.Get)

		admin := api.Group("/admin", middleware.RequireRole("admin"))
		admin.GET("/quarantine", quarantineHandler.List)
		admin.DELETE("/quarantine/:id", quarantineHandler.Release)
		if cfg.Reports.Enabled {
			admin.GET("/reports/security", reportHandler.Download)
			admin.GET("/reports/security/summary", reportHandler.Summary)
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Errorw("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logr.Sugar().Infow("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Sugar().Errorw("graceful shutdown failed", "error", err)
	}
}

func tierFromConfig(tier config.RateLimitTier) ratelimit.TierConfig {
	return ratelimit.TierConfig{
		Window:       tier.Window,
		MaxUploads:   tier.MaxUploads,
		MaxSizeBytes: tier.MaxSizeBytes,
	}
}

// publishQuarantineUsage refreshes the quarantine gauges once a minute.
func publishQuarantineUsage(ctx context.Context, store *quarantine.Store, metrics *service.MetricsService, logr *zap.Logger) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			records, err := store.List()
			if err != nil {
				logr.Warn("quarantine usage refresh failed", zap.Error(err))
				continue
			}
			var total int64
			for _, record := range records {
				total += record.FileSize
			}
			metrics.SetQuarantineUsage(len(records), total)
		}
	}
}
