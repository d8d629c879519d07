package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"sensorchat-backend/internal/model"
)

// GetDevices handles the GET /api/devices request. When the gateway cannot
// be reached at all, the hardcoded fallback list is returned flagged as
// such, so the dashboard can still render a device picker.
func (h *Handler) GetDevices(c *gin.Context) {
	devices, err := h.gateway.Devices(c.Request.Context())
	if err != nil {
		if !isUnreachable(err) {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		log.Printf("Device listing unreachable, serving fallback list: %v", err)
		c.JSON(http.StatusOK, gin.H{
			"devices":  model.FallbackDevices(),
			"fallback": true,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"devices":  devices,
		"fallback": false,
	})
}

// GetDevice handles the GET /api/devices/:device_id request.
func (h *Handler) GetDevice(c *gin.Context) {
	device, err := h.gateway.DeviceInfo(c.Request.Context(), c.Param("device_id"))
	if err != nil {
		if isUnreachable(err) {
			abortUnreachable(c, err)
		} else {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	if device == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "device not found"})
		return
	}
	c.JSON(http.StatusOK, device)
}
