package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tutorwise/config"
	"tutorwise/internal/cache"
	"tutorwise/internal/database"
	"tutorwise/internal/jobs"
	"tutorwise/internal/logging"
	"tutorwise/internal/router"

	"go.uber.org/zap"
)

func main() {
	cfg := config.Load()
	logger, err := logging.New(cfg.Server.Env == "production")
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	db, err := database.NewDB(&cfg.Database)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	if err := database.AutoMigrate(db); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	var codeCache *cache.Client
	if cfg.Redis.URL != "" {
		codeCache, err = cache.NewClient(cfg.Redis.URL, cfg.Redis.CodeTTL)
		if err != nil {
			logger.Warn("redis unavailable, referral code cache disabled", zap.Error(err))
			codeCache = nil
		} else {
			defer func() { _ = codeCache.Close() }()
		}
	}

	svc, err := router.NewServices(cfg, db, codeCache, logger)
	if err != nil {
		logger.Fatal("services", zap.Error(err))
	}

	stopSweeper := make(chan struct{})
	go svc.Limiter.RunSweeper(3*time.Minute, stopSweeper)

	cronManager := jobs.NewCronManager(cfg, svc.Fraud, svc.Ledger, logger.Named("cron"))
	if err := cronManager.SetupJobs(); err != nil {
		logger.Fatal("cron", zap.Error(err))
	}
	cronManager.Start()

	engine := router.Setup(cfg, db, codeCache, svc, logger)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      engine,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("listen", zap.Error(err))
		}
	}()
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down...")

	close(stopSweeper)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	select {
	case <-cronManager.Stop().Done():
	case <-ctx.Done():
		logger.Warn("cron jobs still running at shutdown")
	}
	logger.Info("server stopped")
}
