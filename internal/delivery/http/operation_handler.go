package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/usecase"
)

// OperationHandler serves the admin operations on operation locks.
type OperationHandler struct {
	controller *usecase.Controller
	logger     *zap.Logger
}

// NewOperationHandler creates a new OperationHandler.
func NewOperationHandler(controller *usecase.Controller, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{
		controller: controller,
		logger:     logger,
	}
}

// forceCompleteRequest is the body of POST /operations/:id/force-complete.
type forceCompleteRequest struct {
	Result json.RawMessage `json:"result"`
}

// GetStatus handles GET /api/v1/operations/:id
func (h *OperationHandler) GetStatus(c *gin.Context) {
	view, err := h.controller.GetStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.logger, "Get operation status", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ForceComplete handles POST /api/v1/operations/:id/force-complete
func (h *OperationHandler) ForceComplete(c *gin.Context) {
	var req forceCompleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body: " + err.Error(),
		})
		return
	}

	if err := h.controller.ForceComplete(c.Request.Context(), c.Param("id"), req.Result); err != nil {
		writeError(c, h.logger, "Force-complete operation", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Delete handles DELETE /api/v1/operations/:id
func (h *OperationHandler) Delete(c *gin.Context) {
	if err := h.controller.DeleteOperation(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.logger, "Delete operation", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// Cleanup handles POST /api/v1/operations/cleanup
func (h *OperationHandler) Cleanup(c *gin.Context) {
	removed, err := h.controller.CleanupExpired(c.Request.Context())
	if err != nil {
		writeError(c, h.logger, "Cleanup expired operations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"removed": removed})
}
