// audit.go implements the audit trail endpoints: queries, export, chain
// verification, archive lookup, and the admin-only purge and recording
// controls.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/meddev-qms/meddev-qms/internal/audit"
	"github.com/meddev-qms/meddev-qms/internal/config"
	"github.com/meddev-qms/meddev-qms/internal/db/repositories"
	"github.com/meddev-qms/meddev-qms/internal/storage"
)

// auditEntriesHandler queries the in-memory trail. Filters combine with AND
// semantics; with no filters the most recent entries are returned.
// Implements: GET /api/v1/audit/entries?entity_type=&entity_id=&user=&start=&end=&limit=
func auditEntriesHandler(trail *audit.TrailStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if err != nil || limit < 1 || limit > 1000 {
			limit = 100
		}

		entityType := c.Query("entity_type")
		entityID := c.Query("entity_id")
		user := c.Query("user")
		start, startErr := parseTimeParam(c.Query("start"))
		end, endErr := parseTimeParam(c.Query("end"))
		if startErr != nil || endErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start and end must be RFC 3339 timestamps"})
			return
		}

		var entries []audit.Entry
		switch {
		case entityType != "" && entityID != "":
			entries = trail.EntriesByEntity(audit.EntityType(entityType), entityID)
		case user != "":
			entries = trail.EntriesByUser(user)
		case start != nil || end != nil:
			from := time.Time{}
			to := time.Now().Add(24 * time.Hour)
			if start != nil {
				from = *start
			}
			if end != nil {
				to = *end
			}
			entries = trail.EntriesByDateRange(from, to)
		default:
			entries = trail.RecentEntries(limit)
		}

		if len(entries) > limit {
			entries = entries[:limit]
		}
		c.JSON(http.StatusOK, gin.H{
			"entries": entries,
			"total":   len(entries),
		})
	}
}

// auditExportHandler exports the filtered trail as a JSON or CSV document.
// With ?archive=true and a configured archival backend, the document is also
// written to durable storage and the response reports where.
// Implements: GET /api/v1/audit/export?format=&entityType=&user=&startDate=&endDate=&archive=
func auditExportHandler(trail *audit.TrailStore, backend storage.Backend, cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start, startErr := parseTimeParam(c.Query("startDate"))
		end, endErr := parseTimeParam(c.Query("endDate"))
		if startErr != nil || endErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "startDate and endDate must be RFC 3339 timestamps"})
			return
		}

		filters := audit.Filters{
			EntityType: audit.EntityType(c.Query("entityType")),
			User:       c.Query("user"),
			Start:      start,
			End:        end,
		}

		format := c.DefaultQuery("format", "json")
		var (
			data        []byte
			contentType string
			err         error
		)
		switch format {
		case "json":
			data, err = trail.ExportJSON(filters)
			contentType = "application/json"
		case "csv":
			data, err = trail.ExportCSV(filters)
			contentType = "text/csv"
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or csv"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to build export"})
			return
		}

		filename := audit.ExportFilename(format, time.Now())

		if c.Query("archive") == "true" {
			if backend == nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Export archival is not configured"})
				return
			}
			result, err := backend.Put(c.Request.Context(), filename, data, contentType)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to archive export"})
				return
			}
			c.JSON(http.StatusOK, gin.H{
				"archived": true,
				"location": result.Location,
				"size":     result.Size,
				"checksum": result.Checksum,
			})
			return
		}

		c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
		c.Data(http.StatusOK, contentType, data)
	}
}

// auditVerifyHandler checks the hash chain over the retained entries.
// Implements: GET /api/v1/audit/verify
func auditVerifyHandler(trail *audit.TrailStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := trail.Verify(); err != nil {
			c.JSON(http.StatusConflict, gin.H{
				"intact": false,
				"error":  err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"intact":  true,
			"entries": trail.Len(),
		})
	}
}

// auditArchiveHandler queries the long-term database archive.
// Implements: GET /api/v1/audit/archive?entity_type=&entity_id=&action=&user=&start=&end=&limit=&offset=
func auditArchiveHandler(repo *repositories.AuditArchiveRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		if repo == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Audit archive is not configured"})
			return
		}

		limit, err := strconv.Atoi(c.DefaultQuery("limit", "100"))
		if err != nil || limit < 1 || limit > 1000 {
			limit = 100
		}
		offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
		if err != nil || offset < 0 {
			offset = 0
		}

		start, startErr := parseTimeParam(c.Query("start"))
		end, endErr := parseTimeParam(c.Query("end"))
		if startErr != nil || endErr != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start and end must be RFC 3339 timestamps"})
			return
		}

		filters := repositories.ArchiveFilters{StartDate: start, EndDate: end}
		if v := c.Query("entity_type"); v != "" {
			filters.EntityType = &v
		}
		if v := c.Query("entity_id"); v != "" {
			filters.EntityID = &v
		}
		if v := c.Query("action"); v != "" {
			filters.Action = &v
		}
		if v := c.Query("user"); v != "" {
			filters.User = &v
		}

		entries, total, err := repo.List(c.Request.Context(), filters, limit, offset)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query audit archive"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"entries": entries,
			"meta": gin.H{
				"limit":  limit,
				"offset": offset,
				"total":  total,
			},
		})
	}
}

// auditPurgeRequest is the POST body for the purge endpoint.
type auditPurgeRequest struct {
	DaysToKeep *int `json:"daysToKeep" binding:"required"`
}

// auditPurgeHandler removes trail entries older than daysToKeep days.
// Implements: POST /api/v1/audit/purge (admin token required)
func auditPurgeHandler(trail *audit.TrailStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auditPurgeRequest
		if err := c.ShouldBindJSON(&req); err != nil || *req.DaysToKeep < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "daysToKeep is required and must be >= 0"})
			return
		}

		removed := trail.ClearOldEntries(*req.DaysToKeep)

		// The purge itself is logged so the trail records who shrank it.
		_, _ = trail.LogAction(audit.Entry{
			EntityType: audit.EntityUser,
			EntityID:   c.GetString("user_id"),
			Action:     "audit.purged",
			User:       c.GetString("user_name"),
			NewValue:   strconv.Itoa(removed) + " entries removed",
			IPAddress:  c.ClientIP(),
		})

		c.JSON(http.StatusOK, gin.H{
			"removed":    removed,
			"daysToKeep": *req.DaysToKeep,
			"remaining":  trail.Len(),
		})
	}
}

// auditSetRecordingRequest is the PUT body for the recording toggle.
type auditSetRecordingRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// auditSetRecordingHandler toggles audit recording. Existing entries are
// never affected.
// Implements: PUT /api/v1/audit/recording (admin token required)
func auditSetRecordingHandler(trail *audit.TrailStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req auditSetRecordingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "enabled is required"})
			return
		}

		toggleEntry := audit.Entry{
			EntityType: audit.EntityUser,
			EntityID:   c.GetString("user_id"),
			User:       c.GetString("user_name"),
			IPAddress:  c.ClientIP(),
		}
		if *req.Enabled {
			// Enable first so the toggle itself lands in the trail.
			trail.SetRecording(true)
			toggleEntry.Action = "audit.recording.enabled"
			_, _ = trail.LogAction(toggleEntry)
		} else {
			// Log before disabling, for the same reason.
			toggleEntry.Action = "audit.recording.disabled"
			_, _ = trail.LogAction(toggleEntry)
			trail.SetRecording(false)
		}

		c.JSON(http.StatusOK, gin.H{"recording": trail.IsRecording()})
	}
}

// auditRecordingStatusHandler reports the current recording state.
// Implements: GET /api/v1/audit/recording
func auditRecordingStatusHandler(trail *audit.TrailStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"recording": trail.IsRecording()})
	}
}

// parseTimeParam parses an optional RFC 3339 query parameter.
func parseTimeParam(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
