package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/presensi-api/internal/service"
)

// unmatchedRoute labels requests that hit no registered route, so scanners
// probing random URLs cannot grow the path label set without bound.
const unmatchedRoute = "unmatched"

// Metrics records request duration and count per route template. Requests to
// skipPaths (scrapes, health checks) are not observed.
func Metrics(metricsSvc *service.MetricsService, skipPaths ...string) gin.HandlerFunc {
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}

	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		if _, ok := skip[c.Request.URL.Path]; ok {
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
