package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/delivery/http/middleware"
	"github.com/Harsh-BH/geocache/internal/usecase"
)

const maxBodyBytes = 64 << 10

// Usecases groups what the HTTP layer calls into.
type Usecases struct {
	Resolve  *usecase.ResolveUsecase
	Dispatch *usecase.DispatchUsecase
	GetJob   *usecase.GetJobUsecase
	MapItems *usecase.MapItemsUsecase
	Direct   usecase.DirectFunc
}

// NewRouter creates and configures the Gin router with all routes and middleware.
func NewRouter(
	uc Usecases,
	checks map[string]Checker,
	logger *zap.Logger,
	rateLimitPerMin int,
) *gin.Engine {
	router := gin.New()

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger(logger))

	// Metrics endpoint (no rate limiting)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 group
	v1 := router.Group("/api/v1")
	{
		// Health check (no rate limiting)
		healthHandler := NewHealthHandler(checks, logger)
		v1.GET("/health", healthHandler.Health)

		limited := v1.Group("", middleware.RateLimiter(rateLimitPerMin), middleware.BodySizeLimit(maxBodyBytes))

		geoHandler := NewGeocodeHandler(uc.Resolve, uc.Dispatch, uc.GetJob, uc.Direct, logger)
		limited.GET("/geocode/:kind", geoHandler.Resolve)
		limited.POST("/geocode/jobs", geoHandler.Submit)
		limited.GET("/geocode/jobs/:id", geoHandler.GetJob)

		// WebSocket for real-time updates
		wsHandler := NewWebSocketHandler(uc.GetJob, logger)
		limited.GET("/geocode/jobs/:id/stream", wsHandler.Stream)

		mapHandler := NewMapHandler(uc.MapItems, logger)
		limited.GET("/map/:category", mapHandler.List)
		limited.POST("/map/:category", mapHandler.Create)
		limited.DELETE("/map/:category/:id", mapHandler.Delete)
	}

	return router
}
