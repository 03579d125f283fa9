// metrics.go implements the metric catalog and value endpoints.
package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/meddev-qms/meddev-qms/internal/compliance"
)

// listMetricsHandler returns the full metric catalog.
// Implements: GET /api/v1/metrics
func listMetricsHandler(engine *compliance.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		metrics := engine.Metrics()
		c.JSON(http.StatusOK, gin.H{
			"metrics": metrics,
			"total":   len(metrics),
		})
	}
}

// getMetricHandler returns one catalog metric with its latest value and
// current status.
// Implements: GET /api/v1/metrics/:id
func getMetricHandler(engine *compliance.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		m, ok := engine.Metric(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Metric not found"})
			return
		}

		latest, err := engine.Latest(id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load latest value"})
			return
		}
		status, err := engine.Status(id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to evaluate status"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"metric":       m,
			"currentValue": latest,
			"status":       status,
		})
	}
}

// latestValueHandler returns the most recent value for a metric, or 404 when
// nothing has been recorded.
// Implements: GET /api/v1/metrics/:id/latest
func latestValueHandler(engine *compliance.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		latest, err := engine.Latest(c.Param("id"))
		if err != nil {
			if errors.Is(err, compliance.ErrUnknownMetric) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Metric not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load latest value"})
			return
		}
		if latest == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "No values recorded for metric"})
			return
		}
		c.JSON(http.StatusOK, latest)
	}
}

// historyHandler returns a metric's values most-recent-first.
// Implements: GET /api/v1/metrics/:id/values?limit=<n>
func historyHandler(engine *compliance.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "30"))
		if err != nil || limit < 1 || limit > 1000 {
			limit = 30
		}

		values, err := engine.History(c.Param("id"), limit)
		if err != nil {
			if errors.Is(err, compliance.ErrUnknownMetric) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Metric not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load history"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"values": values,
			"total":  len(values),
		})
	}
}

// recordValueRequest is the POST body for recording a metric value.
type recordValueRequest struct {
	Value  *float64           `json:"value" binding:"required"`
	Inputs map[string]float64 `json:"inputs"`
	Notes  string             `json:"notes"`
}

// recordValueHandler records a new value for a metric and returns the stored
// value along with any alerts it raised.
// Implements: POST /api/v1/metrics/:id/values
func recordValueHandler(engine *compliance.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req recordValueRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: value is required"})
			return
		}

		user := c.GetString("user_name")
		if user == "" {
			user = c.GetString("user_id")
		}

		value, alerts, err := engine.Record(compliance.RecordInput{
			MetricID:   c.Param("id"),
			Value:      *req.Value,
			Inputs:     req.Inputs,
			Notes:      req.Notes,
			RecordedBy: user,
			IPAddress:  c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
			SessionID:  c.GetString("request_id"),
		})
		if err != nil {
			if errors.Is(err, compliance.ErrUnknownMetric) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Metric not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to record value"})
			return
		}

		c.JSON(http.StatusCreated, gin.H{
			"value":  value,
			"alerts": alerts,
		})
	}
}

// dashboardHandler returns the derived dashboard rows for every metric.
// Implements: GET /api/v1/dashboard
func dashboardHandler(engine *compliance.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		rows := engine.Dashboard()
		c.JSON(http.StatusOK, gin.H{
			"metrics": rows,
			"total":   len(rows),
		})
	}
}
