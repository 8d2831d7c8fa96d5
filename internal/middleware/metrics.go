package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bfm-api/internal/service"
)

// Metrics records per-request latency and status counts. The scrape endpoint
// itself is excluded so Prometheus polling does not dominate the histograms.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metrics == nil || c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		// Prefer the route template so path cardinality stays bounded.
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		metrics.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
