// internal/server/middleware.go
package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowAllOrigins: true,
		AllowMethods:    []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:    []string{"Content-Type", "Authorization"},
		MaxAge:          12 * time.Hour,
	})
}

func gzipMiddleware() gin.HandlerFunc {
	// Prometheus compresses its own output. SSE events must reach the client
	// as they are flushed.
	return gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{"/metrics", "/sse", "/message"}))
}

func requestLogger(logger log.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := logger.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"elapsed": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("http.request")
			return
		}
		entry.Debug("http.request")
	}
}

// clientLimiter keeps one token bucket per client IP.
type clientLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu      sync.Mutex
	clients map[string]*clientBucket
	swept   time.Time
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		now:     time.Now,
		clients: make(map[string]*clientBucket),
	}
}

func (l *clientLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.swept) > limiterIdleTTL {
		for k, b := range l.clients {
			if now.Sub(b.lastSeen) > limiterIdleTTL {
				delete(l.clients, k)
			}
		}
		l.swept = now
	}

	b, ok := l.clients[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[key] = b
	}
	b.lastSeen = now
	return b.limiter.AllowN(now, 1)
}

// rateLimit throttles tool calls per client IP. A nil limiter lets every
// request through.
func (s *MealVisionServer) rateLimit(l *clientLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.allow(c.ClientIP()) {
			c.Next()
			return
		}
		s.logger.WithField("client", c.ClientIP()).Warn("http.rate_limited")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, errorBody{
			Error:   "rate_limited",
			Status:  http.StatusTooManyRequests,
			Message: "Too many requests. Please slow down.",
		})
	}
}
