package web

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HandlePanics turns a recovered panic into a 500 response
func HandlePanics(logger *zap.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		logger.Error("Recovered from panic", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		c.AbortWithStatus(http.StatusInternalServerError)
	}
}

// RequestLogger logs every request after it has been served
func RequestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", c.ClientIP()),
		)
	}
}
