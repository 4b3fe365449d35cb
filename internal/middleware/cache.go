package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Handlers annotate responses with report metadata so API consumers can tell
// a cached report from a freshly assembled one.
const (
	responseMetaKey = "response_meta"

	metaCacheHit       = "cache_hit"
	metaProcessingTime = "processing_time_ms"
)

// WithResponseMeta seeds a metadata map on the request context and stamps the
// handler duration once the chain returns.
func WithResponseMeta() gin.HandlerFunc {
	return func(c *gin.Context) {
		started := time.Now()
		c.Set(responseMetaKey, map[string]interface{}{})
		c.Next()
		meta := ensureMeta(c)
		if _, stamped := meta[metaProcessingTime]; !stamped {
			meta[metaProcessingTime] = time.Since(started).Milliseconds()
		}
	}
}

// SetCacheHit marks whether the report on the current response was served
// from cache.
func SetCacheHit(c *gin.Context, hit bool) {
	ensureMeta(c)[metaCacheHit] = hit
}

// ExtractMeta returns the metadata map stored on the context, or nil when the
// middleware never ran.
func ExtractMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return nil
	}
	if raw, ok := c.Get(responseMetaKey); ok {
		if meta, ok := raw.(map[string]interface{}); ok {
			return meta
		}
	}
	return nil
}

func ensureMeta(c *gin.Context) map[string]interface{} {
	if c == nil {
		return map[string]interface{}{}
	}
	if raw, ok := c.Get(responseMetaKey); ok {
		if meta, ok := raw.(map[string]interface{}); ok {
			return meta
		}
	}
	meta := make(map[string]interface{})
	c.Set(responseMetaKey, meta)
	return meta
}
