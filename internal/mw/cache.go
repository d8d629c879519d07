package mw

import (
	"bytes"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
)

// storedResponse is one cached GET response.
type storedResponse struct {
	status int
	header http.Header
	body   []byte
}

// teeWriter duplicates everything written to the response into a buffer so a
// successful response can be stored after the handler returns.
type teeWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *teeWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *teeWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Cache serves repeated GET requests from memory to shield the tunneled
// gateway from dashboard refresh storms. The cache key is the full request
// URI, so distinct query parameters cache independently. Only 2xx responses
// are stored: an upstream failure must be retried on the next request, not
// replayed.
func Cache(store *cache.Cache, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := c.Request.RequestURI
		if hit, ok := store.Get(key); ok {
			stored := hit.(storedResponse)
			for k, v := range stored.header {
				c.Writer.Header()[k] = v
			}
			c.Writer.WriteHeader(stored.status)
			c.Writer.Write(stored.body)
			c.Abort()
			return
		}

		tee := &teeWriter{ResponseWriter: c.Writer}
		c.Writer = tee

		c.Next()

		if status := tee.Status(); status >= 200 && status < 300 {
			store.Set(key, storedResponse{
				status: status,
				header: tee.Header().Clone(),
				body:   tee.buf.Bytes(),
			}, ttl)
		}
	}
}
