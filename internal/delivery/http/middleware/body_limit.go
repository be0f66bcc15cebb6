package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// BodySizeLimit rejects requests whose declared length exceeds maxBytes with
// 413 and caps undeclared bodies with http.MaxBytesReader. A non-positive
// maxBytes disables the limit.
func BodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if maxBytes <= 0 {
			c.Next()
			return
		}
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
				"error": "Request body exceeds " + strconv.FormatInt(maxBytes, 10) + " bytes",
			})
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
