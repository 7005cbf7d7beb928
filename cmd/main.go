package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"school-notification-service/internal/config"
	"school-notification-service/internal/server"
	"school-notification-service/pkg/logger"

	"go.uber.org/zap"
)

func main() {
	// Load config (reads .env when present)
	cfg := config.Load()

	zlog, err := logger.New()
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer zlog.Sync()

	srv := server.NewServer(cfg, zlog)

	errCh := make(chan error, 1)
	go func() {
		zlog.Info("Notification service HTTP server starting", zap.String("addr", cfg.HTTPAddr))
		errCh <- srv.HTTP.ListenAndServe()
	}()

	// Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		zlog.Info("Notification service shutting down gracefully")
		srv.Scheduler.Stop()
		srv.Queue.Stop()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.HTTP.Shutdown(ctx); err != nil {
			zlog.Error("Notification service shutdown error", zap.Error(err))
		}
	case err := <-errCh:
		zlog.Fatal("Notification service failed", zap.Error(err))
	}
}
