package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// EndpointStatus exposes the resolver's view of the tunnel for diagnostics.
type EndpointStatus interface {
	Status() map[string]any
}

// GetHealth handles the GET /api/health request. The service itself is up
// by definition if this handler runs; upstream connectivity is reported
// alongside so the dashboard can show a degraded-mode banner.
func (h *Handler) GetHealth(resolver EndpointStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		upstream := "ok"
		if err := h.gateway.Health(c.Request.Context()); err != nil {
			upstream = "unreachable"
		}

		body := gin.H{
			"status":   "ok",
			"upstream": upstream,
		}
		if resolver != nil {
			body["endpoint"] = resolver.Status()
		}
		c.JSON(http.StatusOK, body)
	}
}
