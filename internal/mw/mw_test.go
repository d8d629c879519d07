package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(RateLimiter(rate.Limit(1), 2))
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	assert.Equal(t, http.StatusOK, get(r, "/").Code)
	assert.Equal(t, http.StatusOK, get(r, "/").Code)
	assert.Equal(t, http.StatusTooManyRequests, get(r, "/").Code)
}

func TestCache_ServesSecondRequestFromMemory(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	calls := 0

	r := gin.New()
	r.GET("/data", Cache(store, time.Minute), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusOK, gin.H{"calls": calls})
	})

	first := get(r, "/data?limit=5")
	second := get(r, "/data?limit=5")
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)

	// A different query string is a different cache entry.
	get(r, "/data?limit=10")
	assert.Equal(t, 2, calls)
}

func TestCache_DoesNotStoreFailures(t *testing.T) {
	store := cache.New(time.Minute, time.Minute)
	calls := 0

	r := gin.New()
	r.GET("/data", Cache(store, time.Minute), func(c *gin.Context) {
		calls++
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "gateway_unreachable"})
	})

	get(r, "/data")
	get(r, "/data")
	assert.Equal(t, 2, calls, "failures are retried, not replayed")
}
