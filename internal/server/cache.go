package server

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// cacheMiddleware caches successful GET responses in Redis.
func (s *Server) cacheMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.opts.Cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := cacheKey(c)
		ctx := c.Request.Context()

		if cached, err := s.opts.Cache.Get(ctx, key).Result(); err == nil {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cached))
			c.Abort()
			return
		}

		recorder := &responseRecorder{
			ResponseWriter: c.Writer,
			status:         http.StatusOK,
			body:           &bytes.Buffer{},
		}
		c.Writer = recorder

		c.Next()

		if recorder.status >= 200 && recorder.status < 300 && recorder.body.Len() > 0 {
			if err := s.opts.Cache.Set(ctx, key, recorder.body.Bytes(), s.opts.CacheTTL).Err(); err != nil {
				s.opts.Logger.WithError(err).WithField("key", key).Warn("failed to cache response")
			}
		}
	}
}

type responseRecorder struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(data []byte) (int, error) {
	if len(data) > 0 {
		r.body.Write(data)
	}
	return r.ResponseWriter.Write(data)
}

// cacheKey uses the request path rather than the route so boards do not
// share entries.
func cacheKey(c *gin.Context) string {
	return fmt.Sprintf("pricewatch:%s:%s?%s", c.Request.Method, c.Request.URL.Path, c.Request.URL.RawQuery)
}
