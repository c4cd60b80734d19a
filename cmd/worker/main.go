// Package main runs the background email worker: it drains the Redis email queue, renders and sends
// each notification, and records every attempt in email_logs.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tender-hub/backend/config"
	"github.com/tender-hub/backend/internal/notifications"
	"github.com/tender-hub/backend/internal/worker"
	"github.com/tender-hub/backend/pkg/database"
	"github.com/tender-hub/backend/pkg/queue"
	"github.com/tender-hub/backend/pkg/redis"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	templates, err := notifications.LoadTemplates()
	if err != nil {
		logger.Fatal("email templates", zap.Error(err))
	}

	// Without an SMTP host emails are logged instead of sent (local development).
	var sender notifications.Sender
	if cfg.Email.SMTPHost != "" {
		sender = notifications.NewSMTPSender(notifications.SMTPConfig{
			Host:        cfg.Email.SMTPHost,
			Port:        cfg.Email.SMTPPort,
			Username:    cfg.Email.SMTPUser,
			Password:    cfg.Email.SMTPPass,
			FromAddress: cfg.Email.FromAddress,
			FromName:    cfg.Email.FromName,
		})
	} else {
		logger.Warn("SMTP_HOST not set, emails will only be logged")
		sender = notifications.NewLogSender(logger)
	}

	jobQueue := queue.NewQueue(rdb.Client, cfg.Notifications.MaxRetries, logger)
	processor := worker.NewEmailProcessor(jobQueue, templates, sender, notifications.NewEmailLogRepository(pool), logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
