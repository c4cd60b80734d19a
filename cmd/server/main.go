// Package main runs the Tender Hub HTTP API with the notification outbox relay and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tender-hub/backend/config"
	"github.com/tender-hub/backend/internal/approvals"
	"github.com/tender-hub/backend/internal/audit"
	"github.com/tender-hub/backend/internal/auth"
	"github.com/tender-hub/backend/internal/middleware"
	"github.com/tender-hub/backend/internal/models"
	"github.com/tender-hub/backend/internal/monitoring"
	"github.com/tender-hub/backend/internal/notifications"
	"github.com/tender-hub/backend/internal/publishers"
	"github.com/tender-hub/backend/internal/realtime"
	"github.com/tender-hub/backend/internal/telemetry"
	"github.com/tender-hub/backend/internal/users"
	"github.com/tender-hub/backend/pkg/database"
	"github.com/tender-hub/backend/pkg/queue"
	"github.com/tender-hub/backend/pkg/redis"
	"github.com/tender-hub/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal("invalid config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	// Audit exports are optional: without a bucket the export endpoint answers 503.
	var s3Client *storage.S3
	if cfg.AWS.ExportsBucket != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	jobQueue := queue.NewQueue(rdb.Client, cfg.Notifications.MaxRetries, logger)

	// Live review queue over WebSocket, fanned out across instances through Redis
	pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, pubsub, pubsub)

	// Users, onboarding and sign-in
	userStore := users.NewPgStore(pool)
	userService := users.NewService(userStore, cfg.Email.BaseURL, time.Duration(cfg.Invitations.ExpireHours)*time.Hour, logger)
	userService.SetAccessEvents(hub)
	userHandler := users.NewHandler(userService, logger)
	authHandler := auth.NewHandler(userService, jwtService, logger)

	// Profile update approvals
	approvalStore := approvals.NewPgStore(pool)
	approvalService := approvals.NewService(approvalStore, logger)
	approvalService.SetEvents(hub)
	approvalHandler := approvals.NewHandler(approvalService, logger)

	// Audit log
	auditRepo := audit.NewRepository(pool)
	var exporter *audit.Exporter
	if s3Client != nil {
		exporter = audit.NewExporter(auditRepo, s3Client, logger)
	}
	auditHandler := audit.NewHandler(auditRepo, exporter, logger)

	// Notifications
	outboxRepo := notifications.NewOutboxRepository(pool)
	emailLogRepo := notifications.NewEmailLogRepository(pool)
	emailLogHandler := notifications.NewHandler(emailLogRepo, logger)
	relay := notifications.NewRelay(pool, jobQueue, cfg.Notifications.BatchSize, cfg.Notifications.RelayInterval, logger)

	publisherHandler := publishers.NewHandler(publishers.NewRepository(pool), logger)

	monitoringHandler := monitoring.NewHandler(
		approvalStore.Repository,
		userStore.Repository,
		outboxRepo,
		jobQueue,
		monitoring.PgxPoolStats(pool),
		[]monitoring.Check{
			{Name: "database", Probe: pool.Ping},
			{Name: "redis", Probe: rdb.Healthy},
		},
		logger,
	)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins()))
	router.Use(middleware.Logger(logger))
	if cfg.Metrics.Enabled {
		router.Use(middleware.Metrics())
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	}

	router.GET("/health", monitoringHandler.Health)

	// Public
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}
	router.POST("/invitations/accept", userHandler.AcceptInvitation)
	router.GET("/ws", realtime.ServeWs(hub, jwtService, userStore, cfg.Server.AllowedOrigins(), logger))

	// Protected API (JWT required, user reloaded on every request)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService, userStore, logger))
	{
		api.GET("/dashboard", monitoringHandler.Dashboard)

		// Users
		api.GET("/users/me", userHandler.Me)
		api.GET("/users", middleware.RequireRoleOrHigher(models.RoleManager), userHandler.List)
		api.GET("/users/:id", middleware.RequireRoleOrHigher(models.RoleManager), userHandler.Get)
		api.POST("/users/invitations", middleware.RequireRoleOrHigher(models.RoleManager), userHandler.Invite)
		api.POST("/users/:id/suspend", middleware.RequireRoleOrHigher(models.RoleManager), userHandler.Suspend)
		api.POST("/users/:id/reactivate", middleware.RequireRoleOrHigher(models.RoleManager), userHandler.Reactivate)
		api.PATCH("/users/:id/role", middleware.RequireRoleOrHigher(models.RoleManager), userHandler.ChangeRole)
		api.DELETE("/users/:id", middleware.RequireRoleOrHigher(models.RoleManager), userHandler.Delete)

		// Profile update approvals
		api.POST("/approvals/submit", approvalHandler.Submit)
		api.GET("/approvals/mine", approvalHandler.Mine)
		api.GET("/approvals/pending", middleware.RequireRoleOrHigher(models.RoleManager), approvalHandler.Pending)
		api.GET("/approvals/:id", approvalHandler.Get)
		api.POST("/approvals/:id/review", middleware.RequireRoleOrHigher(models.RoleManager), approvalHandler.Review)

		// Tender publishers
		api.GET("/provinces", publisherHandler.Provinces)
		api.GET("/publishers", publisherHandler.List)
		api.POST("/publishers", middleware.RequireRoleOrHigher(models.RoleAdmin), publisherHandler.Create)

		// Administration
		admin := api.Group("/admin", middleware.RequireRoleOrHigher(models.RoleAdmin))
		admin.GET("/audit-logs", auditHandler.List)
		admin.POST("/audit-logs/export", auditHandler.Export)
		admin.GET("/email-logs", emailLogHandler.ListEmailLogs)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background: outbox relay and pool gauges
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go relay.Run(bgCtx)
	if err := hub.Start(bgCtx); err != nil {
		logger.Fatal("realtime subscribe", zap.Error(err))
	}
	if cfg.Metrics.Enabled {
		telemetry.StartPoolStatsCollector(bgCtx, pool, 15*time.Second, logger)
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	// Hijacked WebSocket connections are not closed by Shutdown.
	hub.Stop()
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
