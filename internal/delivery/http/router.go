package http

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/delivery/http/middleware"
	"github.com/Harsh-BH/oplock/internal/usecase"
)

// RouterDeps holds everything the admin router needs.
type RouterDeps struct {
	Controller      *usecase.Controller
	Checks          map[string]func(ctx context.Context) error
	Logger          *zap.Logger
	RateLimitPerMin int
	MaxBodyBytes    int64
	StreamInterval  time.Duration
}

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(deps *RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(deps.Logger))
	router.Use(middleware.BodySizeLimit(deps.MaxBodyBytes))

	// Metrics endpoint (no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		healthHandler := NewHealthHandler(deps.Checks, deps.Logger)
		v1.GET("/health", healthHandler.Health)

		opHandler := NewOperationHandler(deps.Controller, deps.Logger)
		v1.GET("/operations/:id", opHandler.GetStatus)

		wsHandler := NewWebSocketHandler(deps.Controller, deps.StreamInterval, deps.Logger)
		v1.GET("/operations/:id/stream", wsHandler.Stream)

		// Mutations are rate limited.
		admin := v1.Group("/operations")
		if deps.RateLimitPerMin > 0 {
			admin.Use(middleware.RateLimiter(deps.RateLimitPerMin))
		}
		admin.POST("/cleanup", opHandler.Cleanup)
		admin.POST("/:id/force-complete", opHandler.ForceComplete)
		admin.DELETE("/:id", opHandler.Delete)
	}

	return router
}
