package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetUsage handles the GET /api/usage request, reporting today's position
// against each model's daily quota.
func (h *Handler) GetUsage(c *gin.Context) {
	summary, err := h.quota.Summary(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"usage": summary})
}
