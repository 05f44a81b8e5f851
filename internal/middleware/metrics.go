package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/store-incident-api/internal/service"
)

const unmatchedRoute = "unmatched"

// Metrics observes every request under its route template so unknown paths share one label.
func Metrics(metricsSvc *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
