package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
	"github.com/dev-mohitbeniwal/archive-gateway/util"
)

const requestIDHeader = "X-Request-Id"

// Logger is a middleware that logs incoming HTTP requests. Handlers may add
// fields to the entry with AddLogFields.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Set(util.RequestIDKey, requestID)
		c.Header(requestIDHeader, requestID)

		// Process request
		c.Next()

		latency := time.Since(start)
		fields := []zap.Field{
			zap.String("requestID", requestID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.String("query", query),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
			zap.String("user-agent", c.Request.UserAgent()),
		}
		if extra, ok := c.Get(logFieldsKey); ok {
			fields = append(fields, extra.([]zap.Field)...)
		}

		if len(c.Errors) > 0 {
			for _, e := range c.Errors.Errors() {
				logger.Error("Request error", append(fields, zap.String("error", e))...)
			}
		} else {
			logger.Info("Request processed", fields...)
		}
	}
}

const logFieldsKey = "logFields"

// AddLogFields attaches fields to the request log entry written by Logger.
func AddLogFields(c *gin.Context, fields ...zap.Field) {
	if prev, ok := c.Get(logFieldsKey); ok {
		fields = append(prev.([]zap.Field), fields...)
	}
	c.Set(logFieldsKey, fields)
}
