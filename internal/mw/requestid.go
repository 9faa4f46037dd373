package mw

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// RequestIDKey is the gin context key holding the request's correlation ID.
const RequestIDKey = "request_id"

// RequestID assigns every request a correlation ID, echoed in the response
// and attached to error logs so unexpected failures can be traced back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(RequestIDKey, id)
		c.Writer.Header().Set("X-Request-ID", id)
		c.Next()
	}
}

// GetRequestID returns the request's correlation ID.
func GetRequestID(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
