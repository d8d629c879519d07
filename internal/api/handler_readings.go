package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"sensorchat-backend/internal/sensorapi"
)

// GetReadings handles the GET /api/readings request. limit and hours are
// passed to the gateway untouched; their enforcement is its business. The
// response distinguishes three caller-visible situations: data, zero
// readings in range (empty success), and gateway unreachable (503).
func (h *Handler) GetReadings(c *gin.Context) {
	q := sensorapi.ReadingsQuery{
		DeviceID:   c.Query("device_id"),
		SensorType: c.Query("sensor_type"),
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		q.Limit = limit
	}
	if raw := c.Query("hours"); raw != "" {
		hours, err := strconv.ParseFloat(raw, 64)
		if err != nil || hours < 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "hours must be a non-negative number"})
			return
		}
		q.Hours = hours
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

	resp := gin.H{
		"readings": result.Readings,
		"count":    len(result.Readings),
	}
	if result.Dropped > 0 {
		resp["partial"] = true
		resp["skipped"] = result.Dropped
		resp["message"] = "Some readings were invalid and skipped."
	}
	c.JSON(http.StatusOK, resp)
}
