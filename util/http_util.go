// util/http_util.go
package util

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	logger "github.com/dev-mohitbeniwal/archive-gateway/logging"
)

// RespondWithError logs err and answers with a JSON body {"message": message}.
func RespondWithError(c *gin.Context, code int, message string, err error) {
	logger.Error(message,
		zap.Error(err),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method))
	c.AbortWithStatusJSON(code, gin.H{"message": message})
}

// RequestIDKey is the gin context key holding the request id.
const RequestIDKey = "requestID"

func GetRequestIDFromContext(c *gin.Context) string {
	return c.GetString(RequestIDKey)
}
