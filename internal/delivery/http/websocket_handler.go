package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/usecase"
)

// DefaultStreamInterval is how often a stream re-reads the lock.
const DefaultStreamInterval = 500 * time.Millisecond

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // admin API; restrict with a reverse proxy
	},
}

// WebSocketHandler streams an operation's status until it turns terminal.
type WebSocketHandler struct {
	controller *usecase.Controller
	interval   time.Duration
	logger     *zap.Logger
}

// NewWebSocketHandler creates a new WebSocketHandler. A non-positive interval
// uses DefaultStreamInterval.
func NewWebSocketHandler(controller *usecase.Controller, interval time.Duration, logger *zap.Logger) *WebSocketHandler {
	if interval <= 0 {
		interval = DefaultStreamInterval
	}
	return &WebSocketHandler{
		controller: controller,
		interval:   interval,
		logger:     logger,
	}
}

// Stream handles GET /api/v1/operations/:id/stream (WebSocket upgrade)
func (h *WebSocketHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()

	// Reject unknown ids before upgrading so clients get a plain 404.
	view, err := h.controller.GetStatus(ctx, id)
	if err != nil {
		writeError(c, h.logger, "Stream operation status", err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("WebSocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	h.logger.Debug("WebSocket connection opened", zap.String("operation_id", id))

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		if err := conn.WriteJSON(view); err != nil {
			h.logger.Debug("WebSocket write failed (client disconnected)", zap.Error(err))
			return
		}
		if view.Status.IsTerminal() {
			h.logger.Debug("Operation reached terminal state, closing WebSocket", zap.String("operation_id", id))
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, string(view.Status)),
				time.Now().Add(time.Second))
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		view, err = h.controller.GetStatus(ctx, id)
		if err != nil {
			// Deleted or reclaimed while streaming.
			_ = conn.WriteJSON(gin.H{"error": "Operation not found"})
			return
		}
	}
}
