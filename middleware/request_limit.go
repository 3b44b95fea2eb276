package middleware

import (
	"net/http"

	"cre-chatbot-platform/utils"

	"github.com/gin-gonic/gin"
)

// RequestSizeLimit rejects requests whose declared Content-Length exceeds
// maxSize before any body bytes are read. Deal PDFs routinely run tens of
// megabytes, so the cap comes from MAX_FILE_SIZE rather than a constant.
func RequestSizeLimit(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxSize {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge, "request_too_large",
				"Request body exceeds maximum size",
				gin.H{"max_size": maxSize, "received": c.Request.ContentLength})
			c.Abort()
			return
		}
		c.Next()
	}
}
