package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/usecase"
)

// GeocodeHandler handles geocoding lookups and job status requests.
type GeocodeHandler struct {
	resolveUC  *usecase.ResolveUsecase
	dispatchUC *usecase.DispatchUsecase
	getJobUC   *usecase.GetJobUsecase
	direct     usecase.DirectFunc
	logger     *zap.Logger
}

// NewGeocodeHandler creates a new GeocodeHandler.
func NewGeocodeHandler(
	resolveUC *usecase.ResolveUsecase,
	dispatchUC *usecase.DispatchUsecase,
	getJobUC *usecase.GetJobUsecase,
	direct usecase.DirectFunc,
	logger *zap.Logger,
) *GeocodeHandler {
	return &GeocodeHandler{
		resolveUC:  resolveUC,
		dispatchUC: dispatchUC,
		getJobUC:   getJobUC,
		direct:     direct,
		logger:     logger,
	}
}

// SubmitRequest is the body of POST /api/v1/geocode/jobs.
type SubmitRequest struct {
	Kind  domain.Kind  `json:"kind" binding:"required"`
	Input domain.Input `json:"input"`
}

// Resolve handles GET /api/v1/geocode/:kind?pincode=|lat=&lng=&async=
func (h *GeocodeHandler) Resolve(c *gin.Context) {
	kind := domain.Kind(c.Param("kind"))
	in, err := inputFromQuery(c, kind)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	async, err := boolQuery(c, "async", true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.resolveUC.Execute(c.Request.Context(), kind, in, h.direct, usecase.ResolveOptions{Async: async})
	if err != nil {
		writeError(c, h.logger, "Resolve", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Submit handles POST /api/v1/geocode/jobs
func (h *GeocodeHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	resp, err := h.dispatchUC.Execute(c.Request.Context(), req.Kind, req.Input)
	switch {
	case err == nil && resp.Cached:
		c.JSON(http.StatusOK, resp)
	case err == nil:
		c.JSON(http.StatusAccepted, resp)
	case errors.Is(err, domain.ErrBrokerUnavailable):
		// No async path: answer synchronously instead of handing out a job
		// nobody will run.
		res, rerr := h.resolveUC.Execute(c.Request.Context(), req.Kind, req.Input, h.direct, usecase.ResolveOptions{Async: false})
		if rerr != nil {
			writeError(c, h.logger, "Submit", rerr)
			return
		}
		c.JSON(http.StatusOK, domain.DispatchResult{
			JobID:  res.JobID,
			Status: domain.StatusCompleted,
			Cached: res.Source == usecase.SourceCache,
			Result: res.Result,
		})
	default:
		writeError(c, h.logger, "Submit", err)
	}
}

// GetJob handles GET /api/v1/geocode/jobs/:id
func (h *GeocodeHandler) GetJob(c *gin.Context) {
	idStr := c.Param("id")
	if _, err := uuid.Parse(idStr); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
		return
	}

	job, err := h.getJobUC.Execute(c.Request.Context(), idStr)
	if err != nil {
		writeError(c, h.logger, "Get job", err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func inputFromQuery(c *gin.Context, kind domain.Kind) (domain.Input, error) {
	if !kind.IsValid() {
		return domain.Input{}, errors.New("unknown lookup kind: " + string(kind))
	}
	if kind.NeedsPincode() {
		pin := c.Query("pincode")
		if pin == "" {
			return domain.Input{}, errors.New("pincode is required")
		}
		return domain.Input{Pincode: pin}, nil
	}

	lat, err := floatQuery(c, "lat")
	if err != nil {
		return domain.Input{}, err
	}
	lng, err := floatQuery(c, "lng")
	if err != nil {
		return domain.Input{}, err
	}
	return domain.Input{Lat: lat, Lng: lng}, nil
}

func floatQuery(c *gin.Context, name string) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, errors.New(name + " is required")
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New(name + " must be a number")
	}
	return v, nil
}

// boolQuery parses an optional boolean query parameter, returning def when absent.
func boolQuery(c *gin.Context, name string, def bool) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New(name + " must be true or false")
	}
	return v, nil
}
