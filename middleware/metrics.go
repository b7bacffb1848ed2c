package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pokemcp/server/metrics"
)

// Metrics records request latency per matched route.
func Metrics(m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		m.ObserveHTTP(c.FullPath(), c.Request.Method, c.Writer.Status(), time.Since(start))
	}
}
