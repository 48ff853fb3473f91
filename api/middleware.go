package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/meghashyamc/docsearch/logger"
)

const HeaderRequestID = "X-Request-ID"

const keyRequestID = "request_id"

// requestIDMiddleware keeps a caller supplied request id or assigns a new one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		c.Set(keyRequestID, requestID)
		c.Header(HeaderRequestID, requestID)
		c.Next()
	}
}

func loggingMiddleware(logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		logger.Info("request", "method", c.Request.Method, "path", c.Request.URL.Path, keyRequestID, c.GetString(keyRequestID))
		c.Next()
		logger.Info("response", "method", c.Request.Method, "path", c.Request.URL.Path, keyRequestID, c.GetString(keyRequestID),
			"status", c.Writer.Status(), "bytes", c.Writer.Size(), "latency_ms", time.Since(start).Milliseconds())
	}
}
