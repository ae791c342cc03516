package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/signal-dashboard/internal/config"
	"github.com/yourorg/signal-dashboard/internal/logger"
	"github.com/yourorg/signal-dashboard/internal/mockapi"
)

func main() {
	path := os.Getenv("DASHBOARD_CONFIG")
	if path == "" {
		if _, err := os.Stat("config/config.yaml"); err == nil {
			path = "config/config.yaml"
		}
	}

	cfg, err := config.LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	auth, err := mockapi.NewAuthService(&cfg.Mock, zapLogger)
	if err != nil {
		zapLogger.Fatal("Failed to create demo auth service", zap.Error(err))
	}
	h := mockapi.NewHandler(auth, mockapi.NewMarket(), zapLogger)

	srv := &http.Server{
		Addr:         ":" + cfg.Mock.Port,
		Handler:      mockapi.NewRouter(h, zapLogger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		zapLogger.Info("Starting demo backend",
			zap.String("port", cfg.Mock.Port),
			zap.String("username", cfg.Mock.Username))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down demo backend...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	zapLogger.Info("Demo backend exited properly")
}
