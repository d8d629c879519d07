package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sensorchat-backend/internal/report"
	"sensorchat-backend/internal/sensorapi"
)

// GetReportSummary handles the GET /api/reports/summary request. Accepts
// the same device_id/limit/hours selection as readings; format=markdown
// returns the rendered report instead of JSON.
func (h *Handler) GetReportSummary(c *gin.Context) {
	q := sensorapi.ReadingsQuery{DeviceID: c.Query("device_id")}
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 {
			q.Limit = v
		}
	}
	if raw := c.Query("hours"); raw != "" {
		if v, err := strconv.ParseFloat(raw, 64); err == nil && v > 0 {
			q.Hours = v
		}
	}
	if q.Limit == 0 {
		q.Limit = 200
	}

	result, err := h.gateway.Readings(c.Request.Context(), q)
	if err != nil {
		if isUnreachable(err) {
			abortUnreachable(c, err)
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}

	summary := report.Build(result.Readings)

	if c.Query("format") == "markdown" {
		c.String(http.StatusOK, summary.Markdown())
		return
	}
	c.JSON(http.StatusOK, summary)
}
