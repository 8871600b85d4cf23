package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AnchalDevBytes/challan-maker/internal/service"
)

// Metrics records per-request duration and counts. The route template is used
// as the path label so path cardinality stays bounded.
func Metrics(metrics *service.MetricsService) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		metrics.RecordHTTPRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			time.Since(start),
		)
	}
}
