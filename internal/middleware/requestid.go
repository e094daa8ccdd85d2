// Package middleware provides the gin middleware chain for searchd: request
// IDs, tenant context extraction, and rate limiting.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is honored when the caller supplies its own ID.
	RequestIDHeader = "X-Request-ID"

	requestIDKey = "request_id"
)

// RequestID assigns each request an ID, honoring a caller-supplied
// X-Request-ID header, and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

// GetRequestID returns the request's ID, empty if RequestID did not run.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}
