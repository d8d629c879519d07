package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"sensorchat-backend/config"
	"sensorchat-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(h *Handler, resolver EndpointStatus, cfg *config.ServerConfig) *gin.Engine {
	r := gin.Default()

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/health", h.GetHealth(resolver))

		// Read endpoints are cached to shield the tunnel from refresh storms.
		api.GET("/devices", caching, h.GetDevices)
		api.GET("/devices/:device_id", caching, h.GetDevice)
		api.GET("/readings", caching, h.GetReadings)
		api.GET("/reports/summary", caching, h.GetReportSummary)

		api.POST("/chat", h.PostChat)
		api.GET("/conversations", h.GetConversations)
		api.GET("/usage", h.GetUsage)

		api.GET("/subscriptions", h.GetSubscription)
		api.PUT("/subscriptions", h.PutSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)
		api.GET("/vapid_public_key", h.GetVAPIDPublicKey)
	}

	return r
}
