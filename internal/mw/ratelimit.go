// Package mw holds the gin middleware shared by the API routes.
package mw

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// visitorTTL bounds how long an idle client keeps its token bucket.
const visitorTTL = time.Hour

// RateLimiter enforces a per-client-IP token bucket across all API routes.
// Buckets for clients idle longer than visitorTTL are evicted so the map
// cannot grow without bound.
func RateLimiter(limit rate.Limit, burst int) gin.HandlerFunc {
	var (
		mu       sync.Mutex
		visitors = make(map[string]*visitor)
		lastScan = time.Now()
	)

	take := func(ip string) bool {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if now.Sub(lastScan) > visitorTTL {
			for addr, v := range visitors {
				if now.Sub(v.lastSeen) > visitorTTL {
					delete(visitors, addr)
				}
			}
			lastScan = now
		}

		v, ok := visitors[ip]
		if !ok {
			v = &visitor{limiter: rate.NewLimiter(limit, burst)}
			visitors[ip] = v
		}
		v.lastSeen = now
		return v.limiter.Allow()
	}

	return func(c *gin.Context) {
		if !take(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
