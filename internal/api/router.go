// Package api wires the HTTP surface of the QMS compliance service: metric
// catalog and value endpoints, the dashboard, alerts, and the audit trail
// administration endpoints. Handlers stay thin; all domain behaviour lives in
// the compliance and audit packages.
package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"

	"github.com/meddev-qms/meddev-qms/internal/audit"
	"github.com/meddev-qms/meddev-qms/internal/compliance"
	"github.com/meddev-qms/meddev-qms/internal/config"
	"github.com/meddev-qms/meddev-qms/internal/db/repositories"
	"github.com/meddev-qms/meddev-qms/internal/middleware"
	"github.com/meddev-qms/meddev-qms/internal/storage"
)

// Deps carries everything the router needs. Archive, ExportBackend, DB, and
// Limiter are optional; a nil value disables the corresponding feature.
type Deps struct {
	Config        *config.Config
	Engine        *compliance.Engine
	Trail         *audit.TrailStore
	Archive       *repositories.AuditArchiveRepository
	ExportBackend storage.Backend
	DB            *sqlx.DB
	Limiter       middleware.Limiter
}

// SetupRouter builds the Gin router with all middleware and routes.
func SetupRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggingMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware())
	router.Use(middleware.CORSMiddleware(&d.Config.Security.CORS))

	router.GET("/health", healthHandler(d.DB))
	router.GET("/ready", readyHandler(d))

	v1 := router.Group("/api/v1")
	if d.Limiter != nil {
		v1.Use(middleware.RateLimitMiddleware(d.Limiter, d.Config.Security.RateLimiting.RequestsPerMinute))
	}

	// Read endpoints are open; every mutation requires a JWT.
	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware())

	// Audit administration requires the admin token on top of a JWT.
	admin := authed.Group("")
	admin.Use(middleware.AdminTokenMiddleware(d.Config.Auth.AdminTokenHash))

	v1.GET("/metrics", listMetricsHandler(d.Engine))
	v1.GET("/metrics/:id", getMetricHandler(d.Engine))
	v1.GET("/metrics/:id/latest", latestValueHandler(d.Engine))
	v1.GET("/metrics/:id/values", historyHandler(d.Engine))
	authed.POST("/metrics/:id/values", recordValueHandler(d.Engine))

	v1.GET("/dashboard", dashboardHandler(d.Engine))

	v1.GET("/alerts", listAlertsHandler(d.Engine))
	authed.POST("/alerts/:id/acknowledge", acknowledgeAlertHandler(d.Engine))

	v1.GET("/audit/entries", auditEntriesHandler(d.Trail))
	v1.GET("/audit/export", auditExportHandler(d.Trail, d.ExportBackend, d.Config))
	v1.GET("/audit/verify", auditVerifyHandler(d.Trail))
	v1.GET("/audit/recording", auditRecordingStatusHandler(d.Trail))
	v1.GET("/audit/archive", auditArchiveHandler(d.Archive))
	admin.POST("/audit/purge", auditPurgeHandler(d.Trail))
	admin.PUT("/audit/recording", auditSetRecordingHandler(d.Trail))

	return router
}

// healthHandler is the liveness probe. It also reports archive database
// connectivity when the archive is configured.
func healthHandler(db *sqlx.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			if err := db.Ping(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"error":  "database connection failed",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// readyHandler is the readiness probe: per-dependency checks rather than a
// single verdict.
func readyHandler(d Deps) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}
		ready := true

		if d.DB != nil {
			if err := d.DB.Ping(); err != nil {
				checks["database"] = "unhealthy"
				ready = false
			} else {
				checks["database"] = "healthy"
			}
		}
		checks["engine"] = "healthy"
		checks["audit_trail"] = gin.H{
			"entries":   d.Trail.Len(),
			"recording": d.Trail.IsRecording(),
		}

		status := http.StatusOK
		if !ready {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"ready": ready, "checks": checks})
	}
}
