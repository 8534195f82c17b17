package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/jwalitptl/medrecord-api/pkg/httputil"
)

type RateLimiterConfig struct {
	Rate  rate.Limit
	Burst int
	// ClientTTL is how long an idle client's bucket is kept.
	ClientTTL time.Duration
}

// RateLimiter keeps one token bucket per client IP. Idle buckets expire.
type RateLimiter struct {
	cfg     RateLimiterConfig
	mu      sync.Mutex
	buckets *cache.Cache
}

func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.ClientTTL <= 0 {
		config.ClientTTL = 10 * time.Minute
	}
	return &RateLimiter{
		cfg:     config,
		buckets: cache.New(config.ClientTTL, config.ClientTTL),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if v, ok := rl.buckets.Get(key); ok {
		l := v.(*rate.Limiter)
		rl.buckets.SetDefault(key, l)
		return l
	}
	l := rate.NewLimiter(rl.cfg.Rate, rl.cfg.Burst)
	rl.buckets.SetDefault(key, l)
	return l
}

// Allow reports whether the client may make a request now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, httputil.Response{
				Status: "error",
				Error: &httputil.Error{
					Kind:    "rate_limited",
					Message: "rate limit exceeded",
					TraceID: c.GetString(ContextRequestID),
				},
			})
			return
		}
		c.Next()
	}
}
