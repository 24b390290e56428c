package middlewares

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func RequestLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if raw != "" {
			path = path + "?" + raw
		}
		fields := []zap.Field{
			zap.Int("status", c.Writer.Status()),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", time.Since(start)),
			zap.String("ip", c.ClientIP()),
		}
		if p := Principal(c); p != "" {
			fields = append(fields, zap.String("principal", p))
		}

		// Errors attached by handlers are the ones hidden from the client.
		if len(c.Errors) > 0 {
			log.Error("HTTP Request", append(fields, zap.String("errors", c.Errors.String()))...)
			return
		}
		log.Info("HTTP Request", fields...)
	}
}
