package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/usecase"
)

// MapHandler serves incident and event listings by bounding box.
type MapHandler struct {
	mapUC  *usecase.MapItemsUsecase
	logger *zap.Logger
}

// NewMapHandler creates a new MapHandler.
func NewMapHandler(mapUC *usecase.MapItemsUsecase, logger *zap.Logger) *MapHandler {
	return &MapHandler{mapUC: mapUC, logger: logger}
}

// CreateItemRequest is the body of POST /api/v1/map/:category.
type CreateItemRequest struct {
	Title       string  `json:"title" binding:"required"`
	Description string  `json:"description"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Pincode     string  `json:"pincode"`
}

// List handles GET /api/v1/map/:category?min_lat&max_lat&min_lng&max_lng&limit&refresh&invalidate
func (h *MapHandler) List(c *gin.Context) {
	var (
		b   domain.Bounds
		err error
	)
	for name, dst := range map[string]*float64{
		"min_lat": &b.MinLat, "max_lat": &b.MaxLat,
		"min_lng": &b.MinLng, "max_lng": &b.MaxLng,
	} {
		if *dst, err = floatQuery(c, name); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	q := usecase.MapQuery{Category: domain.Category(c.Param("category")), Bounds: b}
	if raw := c.Query("limit"); raw != "" {
		if q.Limit, err = strconv.Atoi(raw); err != nil || q.Limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
	}
	if q.ForceRefresh, err = boolQuery(c, "refresh", false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.ForceInvalidate, err = boolQuery(c, "invalidate", false); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	items, err := h.mapUC.List(c.Request.Context(), q)
	if err != nil {
		writeError(c, h.logger, "List map items", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items, "count": len(items)})
}

// Create handles POST /api/v1/map/:category
func (h *MapHandler) Create(c *gin.Context) {
	var req CreateItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	item := &domain.MapItem{
		Category:    domain.Category(c.Param("category")),
		Title:       req.Title,
		Description: req.Description,
		Lat:         req.Lat,
		Lng:         req.Lng,
		Pincode:     req.Pincode,
	}
	if err := h.mapUC.Create(c.Request.Context(), item); err != nil {
		writeError(c, h.logger, "Create map item", err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// Delete handles DELETE /api/v1/map/:category/:id
func (h *MapHandler) Delete(c *gin.Context) {
	err := h.mapUC.Delete(c.Request.Context(), domain.Category(c.Param("category")), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "Delete map item", err)
		return
	}
	c.Status(http.StatusNoContent)
}
