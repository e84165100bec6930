package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/delivery/http/middleware"
	"github.com/Harsh-BH/geocache/internal/domain"
)

// writeError maps a usecase error to a response. Internal detail never leaves
// the process.
func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrProviderNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "No result found for this location"})
	case errors.Is(err, domain.ErrProviderServiceError):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Geocoding service temporarily unavailable, try again later", "retryable": true})
	case errors.Is(err, domain.ErrJobNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
	case errors.Is(err, domain.ErrItemNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Item not found"})
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
		c.Status(499)
	default:
		logger.Error(op+" failed", zap.Error(err), zap.String("request_id", c.GetString(middleware.RequestIDKey)))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
