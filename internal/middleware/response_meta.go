package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/store-incident-api/pkg/middleware/requestid"
)

const (
	responseMetaKey  = "response_meta"
	cacheHitKey      = "cache_hit"
	responseStartKey = "response_start"
)

// WithResponseMeta initialises the per-request meta map rendered in response envelopes.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		meta := map[string]interface{}{"request_id": requestid.Value(c)}
		c.Set(responseMetaKey, meta)
		c.Set(responseStartKey, time.Now())
		c.Next()
	}
}

// SetCacheHit records whether the response was served from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)[cacheHitKey] = hit
}

// ExtractMeta returns the meta map for the current request with its processing time so far.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	meta := ensureMeta(c)
	if start, ok := c.Get(responseStartKey); ok {
		if t, ok := start.(time.Time); ok {
			meta["processing_time_ms"] = time.Since(t).Milliseconds()
		}
	}
	return meta
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if meta, exists := c.Get(responseMetaKey); exists {
		if typed, ok := meta.(map[string]interface{}); ok {
			return typed
		}
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
