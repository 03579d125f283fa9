package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/meddev-qms/meddev-qms/internal/config"
)

// hstsMaxAgeSeconds is one year, the common baseline for HSTS.
const hstsMaxAgeSeconds = 31536000

// SecurityHeadersMiddleware sets the standard security response headers on
// every API response. The service serves JSON only, so the CSP denies
// everything.
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Referrer-Policy", "no-referrer")
		if c.Request.TLS != nil {
			c.Header("Strict-Transport-Security", "max-age="+strconv.Itoa(hstsMaxAgeSeconds))
		}

		c.Next()
	}
}

// CORSMiddleware applies the configured CORS policy. An allowed_origins entry
// of "*" permits any origin.
func CORSMiddleware(cfg *config.CORSConfig) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	methods := ""
	for i, m := range cfg.AllowedMethods {
		if i > 0 {
			methods += ", "
		}
		methods += m
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Methods", methods)
			c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID, X-Admin-Token")
			c.Header("Vary", "Origin")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
