package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourorg/signal-dashboard/internal/client"
	"github.com/yourorg/signal-dashboard/internal/config"
	"github.com/yourorg/signal-dashboard/internal/events"
	"github.com/yourorg/signal-dashboard/internal/handler"
	"github.com/yourorg/signal-dashboard/internal/logger"
	"github.com/yourorg/signal-dashboard/internal/metrics"
	"github.com/yourorg/signal-dashboard/internal/middleware"
	"github.com/yourorg/signal-dashboard/internal/service"
	"github.com/yourorg/signal-dashboard/internal/session"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(configPath())
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Set up logger
	zapLogger, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	// Durable session storage
	backend, err := session.NewBackend(&cfg.Session)
	if err != nil {
		zapLogger.Fatal("Failed to open session backend",
			zap.String("backend", cfg.Session.Backend),
			zap.Error(err))
	}
	defer backend.Close()
	store := session.NewStore(backend, zapLogger)

	// Backend clients
	recorder := metrics.New()
	opts := []client.Option{client.WithMetrics(recorder)}
	if cfg.API.Timeout > 0 {
		opts = append(opts, client.WithTimeout(cfg.API.Timeout))
	}
	authClient := client.NewAuthClient(cfg.API.BaseURL, store, zapLogger, opts...)
	marketClient := client.NewMarketClient(cfg.API.BaseURL, store, zapLogger, opts...)

	publisher := events.NewPublisher(&cfg.Kafka, zapLogger)
	defer publisher.Close()
	if cfg.Kafka.Enabled {
		zapLogger.Info("Publishing dashboard events",
			zap.Strings("brokers", cfg.Kafka.Brokers),
			zap.String("topic", cfg.Kafka.Topic))
	}

	dashOpts := service.DashboardOptions{
		Exchange:        cfg.API.Exchange,
		DefaultUsername: cfg.Dashboard.DefaultUsername,
		DefaultSymbol:   cfg.Dashboard.DefaultSymbol,
		Watchlist:       cfg.Dashboard.Watchlist,
		TOTPInterval:    cfg.TOTP.RefreshInterval,
		Publisher:       publisher,
	}
	if cfg.TOTP.Enabled {
		dashOpts.CodeFetcher = client.NewTOTPClient(cfg.API.BaseURL, zapLogger, opts...)
	}
	dashboard := service.NewDashboard(store, authClient, marketClient, dashOpts, zapLogger)

	rootCtx, stop := context.WithCancel(context.Background())
	defer stop()
	dashboard.Start(rootCtx)

	router := setupRouter(cfg, dashboard, recorder, zapLogger)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start the server in a goroutine
	go func() {
		zapLogger.Info("Starting dashboard server",
			zap.String("port", cfg.Server.Port),
			zap.String("backend_url", cfg.API.BaseURL))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zapLogger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	zapLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		zapLogger.Error("Server forced to shutdown", zap.Error(err))
	}
	dashboard.Close()

	zapLogger.Info("Server exited properly")
}

func configPath() string {
	if p := os.Getenv("DASHBOARD_CONFIG"); p != "" {
		return p
	}
	if _, err := os.Stat("config/config.yaml"); err == nil {
		return "config/config.yaml"
	}
	return ""
}

func setupRouter(cfg *config.Config, dashboard *service.Dashboard, recorder *metrics.Recorder, logger *zap.Logger) *gin.Engine {
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		state := dashboard.State()
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"phase":  state.Phase,
		})
	})

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(recorder.Handler()))
	}

	handler.NewDashboardHandler(dashboard, cfg.Dashboard.DefaultPIN, logger).RegisterRoutes(router)

	return router
}
