package main

import (
	"context"
	"log"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/blastline/blastline/internal/api/handler"
	"github.com/blastline/blastline/internal/api/middleware"
	"github.com/blastline/blastline/internal/app"
	"github.com/blastline/blastline/internal/blast"
	"github.com/blastline/blastline/internal/config"
	"github.com/blastline/blastline/internal/credstore"
	"github.com/blastline/blastline/internal/logger"
	"github.com/blastline/blastline/internal/server"
	authSvc "github.com/blastline/blastline/internal/service/auth"
	blastSvc "github.com/blastline/blastline/internal/service/blast"
	customerSvc "github.com/blastline/blastline/internal/service/customer"
	outletSvc "github.com/blastline/blastline/internal/service/outlet"
	"github.com/blastline/blastline/internal/session"
	"github.com/blastline/blastline/internal/session/whatsmeow"
	"github.com/blastline/blastline/internal/storage"
	"github.com/blastline/blastline/internal/storage/media"
)

func main() {
	cfg := config.Load()

	logr, err := logger.New(cfg.App.Env, cfg.Log.Level)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logr.Sync()

	logr.Info("starting blastline",
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
		zap.String("db_driver", cfg.Storage.Driver),
		zap.String("data_dir", cfg.Storage.DataDir),
	)

	repos, err := storage.NewRepositories(cfg, logr)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	creds, err := credstore.New(filepath.Join(cfg.Storage.DataDir, "sessions"), cfg.WhatsApp.SessionKeyEnc)
	if err != nil {
		log.Fatalf("credstore: %v", err)
	}

	mediaTTL := time.Duration(cfg.Storage.MediaTTLSeconds) * time.Second
	mediaStorage, err := media.NewStorage(filepath.Join(cfg.Storage.DataDir, "media"), mediaTTL, logr)
	if err != nil {
		log.Fatalf("media storage: %v", err)
	}

	dialer := whatsmeow.NewDialer(logr, creds, whatsmeow.DeviceIdentity{
		OSName:   cfg.WhatsApp.DeviceOSName,
		Platform: cfg.WhatsApp.DevicePlatform,
	})

	sessionManager := session.NewManager(logr, session.Config{
		ReconnectCooldown:    cfg.WhatsApp.ReconnectCooldown(),
		ConflictCooldown:     cfg.WhatsApp.ConflictCooldown(),
		MaxReconnectAttempts: cfg.WhatsApp.MaxReconnectAttempts,
		PhoneCheckTimeout:    cfg.WhatsApp.PhoneCheckTimeout(),
	}, dialer, creds, repos.Outlet, repos.Session)

	watchdog := session.NewWatchdog(logr, sessionManager, cfg.WhatsApp.WatchdogInterval())
	watchdog.Start()

	pipeline := blast.NewPipeline(logr, blast.Config{
		MaxRetries:           cfg.Blast.MaxRetries,
		RetryBackoff:         time.Duration(cfg.Blast.RetryBackoffMS) * time.Millisecond,
		TextDelay:            time.Duration(cfg.Blast.TextDelayMS) * time.Millisecond,
		MediaDelay:           time.Duration(cfg.Blast.MediaDelayMS) * time.Millisecond,
		FirstAttachmentDelay: time.Duration(cfg.Blast.FirstAttachmentDelayMS) * time.Millisecond,
		ImageDelay:           time.Duration(cfg.Blast.ImageDelayMS) * time.Millisecond,
		DocumentDelay:        time.Duration(cfg.Blast.DocumentDelayMS) * time.Millisecond,
	}, sessionManager, mediaStorage, repos.Blast, repos.Customer)

	blastPool := blast.NewPool(repos.BlastQueue, pipeline, logr, cfg.Blast.Workers)
	blastPool.Start(context.Background())

	logr.Info("restoring persisted sessions")
	sessionManager.RestoreAll(context.Background())

	authService := authSvc.NewService(repos.User, cfg.JWT.Secret, time.Duration(cfg.JWT.ExpHours)*time.Hour)
	outletService := outletSvc.NewService(repos.Outlet)
	customerService := customerSvc.NewService(repos.Customer)
	blastService := blastSvc.NewService(logr, repos.Blast, repos.Customer, mediaStorage, repos.BlastQueue, repos.RedisClient)

	router := server.NewRouter(server.Options{
		Env:             cfg.App.Env,
		AuthSecret:      cfg.JWT.Secret,
		HealthHandler:   handler.NewHealthHandler(),
		AuthHandler:     handler.NewAuthHandler(authService, logr),
		OutletHandler:   handler.NewOutletHandler(outletService, logr),
		CustomerHandler: handler.NewCustomerHandler(customerService, logr),
		SessionHandler:  handler.NewSessionHandler(sessionManager, creds, logr),
		BlastHandler:    handler.NewBlastHandler(blastService, logr),
		RateLimit: middleware.RateLimitOption{
			Enabled:  cfg.RateLimit.Enabled,
			Requests: cfg.RateLimit.Requests,
			Window:   time.Duration(cfg.RateLimit.WindowSeconds) * time.Second,
			Prefix:   cfg.RateLimit.Prefix,
			Logger:   logr,
			Limiter:  repos.RateLimiter,
		},
	})

	application := app.New(cfg, logr, router)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := application.Run(context.Background()); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	case err := <-errCh:
		logr.Error("server stopped with error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	blastPool.Stop()
	watchdog.Stop()
	sessionManager.Shutdown()

	if repos.RedisClient != nil {
		if err := repos.RedisClient.Close(); err != nil {
			logr.Warn("failed to close redis connection", zap.Error(err))
		}
	}

	if err := application.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	} else {
		logr.Info("server stopped")
	}
}
