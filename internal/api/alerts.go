// alerts.go implements the compliance alert endpoints.
package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/meddev-qms/meddev-qms/internal/compliance"
)

// listAlertsHandler returns alerts most-recent-first, optionally only the
// unacknowledged ones.
// Implements: GET /api/v1/alerts?unacknowledged=true
func listAlertsHandler(engine *compliance.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var alerts []compliance.Alert
		if c.Query("unacknowledged") == "true" {
			alerts = engine.UnacknowledgedAlerts()
		} else {
			alerts = engine.Alerts()
		}

		c.JSON(http.StatusOK, gin.H{
			"alerts": alerts,
			"total":  len(alerts),
		})
	}
}

// acknowledgeAlertHandler marks an alert acknowledged. Acknowledging an
// already-acknowledged alert succeeds and returns the unchanged alert.
// Implements: POST /api/v1/alerts/:id/acknowledge
func acknowledgeAlertHandler(engine *compliance.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := c.GetString("user_name")
		if user == "" {
			user = c.GetString("user_id")
		}

		alert, err := engine.Acknowledge(c.Param("id"), user)
		if err != nil {
			if errors.Is(err, compliance.ErrUnknownAlert) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Alert not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to acknowledge alert"})
			return
		}

		c.JSON(http.StatusOK, alert)
	}
}
