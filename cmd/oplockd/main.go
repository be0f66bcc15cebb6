package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/config"
	handler "github.com/Harsh-BH/oplock/internal/delivery/http"
	"github.com/Harsh-BH/oplock/internal/janitor"
	"github.com/Harsh-BH/oplock/internal/wire"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := config.NewLogger(cfg.Log)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting oplock admin server", zap.String("store", cfg.Store.Driver))

	// Set Gin mode
	gin.SetMode(cfg.Server.GinMode)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backend, err := wire.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open lock store", zap.Error(err))
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("Failed to close backend", zap.Error(err))
		}
	}()
	logger.Info("Connected to lock store", zap.String("driver", cfg.Store.Driver))

	// Start expired-lock janitor
	var jan *janitor.Janitor
	if cfg.Janitor.Enabled {
		jan = janitor.New(backend.Controller, cfg.Janitor.Interval, logger)
		jan.Start(ctx)
	}

	router := handler.NewRouter(&handler.RouterDeps{
		Controller:      backend.Controller,
		Checks:          backend.Checks,
		Logger:          logger,
		RateLimitPerMin: cfg.Server.RateLimit,
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Admin server listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failed", zap.Error(err))
			cancel()
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case <-ctx.Done():
	}

	logger.Info("Shutting down admin server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	cancel()
	if jan != nil {
		jan.Stop()
	}

	logger.Info("Admin server stopped")
}
