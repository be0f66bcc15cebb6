package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/domain"
)

// writeError maps controller errors onto HTTP responses.
func writeError(c *gin.Context, logger *zap.Logger, action string, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidOperationID), errors.Is(err, domain.ErrInvalidResult):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrLockNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Operation not found"})
	default:
		logger.Error(action+" failed", zap.Error(err), zap.String("operation_id", c.Param("id")))
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
