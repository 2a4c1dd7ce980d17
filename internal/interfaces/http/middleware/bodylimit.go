package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/erp/shopsync/internal/interfaces/http/dto"
)

// BodyLimit returns a middleware that limits request body size. Requests
// that announce a larger body are rejected up front; streamed bodies fail
// when the handler reads past the limit.
func BodyLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRequestTooLarge,
				"Request body exceeds maximum allowed size",
				getRequestID(c),
			))
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
