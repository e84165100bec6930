package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/domain"
	"github.com/Harsh-BH/geocache/internal/usecase"
)

const (
	streamInterval = 250 * time.Millisecond
	streamMaxAge   = 2 * time.Minute
	writeWait      = 5 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // CORS middleware already governs browser access
	},
}

// WebSocketHandler handles WebSocket connections for real-time job status updates.
type WebSocketHandler struct {
	getJobUC *usecase.GetJobUsecase
	logger   *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler.
func NewWebSocketHandler(getJobUC *usecase.GetJobUsecase, logger *zap.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		getJobUC: getJobUC,
		logger:   logger,
	}
}

// Stream handles GET /api/v1/geocode/jobs/:id/stream (WebSocket upgrade).
// A frame is sent whenever the status changes; the socket closes once the job
// is terminal.
func (h *WebSocketHandler) Stream(c *gin.Context) {
	idStr := c.Param("id")
	if _, err := uuid.Parse(idStr); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid job ID format"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("WebSocket connection opened", zap.String("job_id", idStr))

	ctx := c.Request.Context()
	ticker := time.NewTicker(streamInterval)
	defer ticker.Stop()
	expired := time.After(streamMaxAge)

	var last domain.Status
	for {
		job, err := h.getJobUC.Execute(ctx, idStr)
		switch {
		case errors.Is(err, domain.ErrJobNotFound):
			h.send(conn, gin.H{"error": "Job not found"})
			return
		case err != nil:
			h.logger.Warn("Job lookup failed during stream", zap.String("job_id", idStr), zap.Error(err))
		case job.Status != last:
			if !h.send(conn, job) {
				return
			}
			last = job.Status
		}

		// Stop streaming once the job reaches a terminal state
		if last.IsTerminal() {
			h.logger.Debug("Job reached terminal state, closing WebSocket", zap.String("job_id", idStr))
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"),
				time.Now().Add(writeWait))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-expired:
			h.send(conn, gin.H{"error": "Stream timed out", "status": last})
			return
		case <-ticker.C:
		}
	}
}

func (h *WebSocketHandler) send(conn *websocket.Conn, v any) bool {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(v); err != nil {
		h.logger.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
		return false
	}
	return true
}
