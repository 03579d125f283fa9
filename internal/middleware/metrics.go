// Package middleware provides the Gin HTTP middleware for the QMS compliance
// service. All middleware in this package is registered in
// internal/api/router.go before any route handlers so that every request is
// covered regardless of handler.
package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/meddev-qms/meddev-qms/internal/telemetry"
)

// MetricsMiddleware records the request counter and latency histogram for
// every request.
//
// The path label is set from c.FullPath(), which returns the matched Gin
// route template (e.g. /api/v1/metrics/:id/values) rather than the raw URL.
// Requests that do not match any registered route use the literal string
// "<no-route>" so unhandled paths do not inflate label cardinality.
//
// Must be registered after gin.Recovery() so the status set by error handlers
// is captured correctly.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "<no-route>"
		}

		duration := time.Since(start).Seconds()
		method := c.Request.Method
		status := strconv.Itoa(c.Writer.Status())

		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
	}
}
