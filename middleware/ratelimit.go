package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

type keyedLimiter struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64
}

// limiterSet hands out one token bucket per key and forgets keys idle for
// longer than idle.
type limiterSet struct {
	r     rate.Limit
	b     int
	idle  time.Duration
	byKey sync.Map
}

func newLimiterSet(r rate.Limit, b int) *limiterSet {
	s := &limiterSet{r: r, b: b, idle: 10 * time.Minute}
	go func() {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			s.sweep(time.Now())
		}
	}()
	return s
}

func (s *limiterSet) allow(key string) bool {
	v, _ := s.byKey.LoadOrStore(key, &keyedLimiter{limiter: rate.NewLimiter(s.r, s.b)})
	kl := v.(*keyedLimiter)
	kl.lastSeen.Store(time.Now().UnixNano())
	return kl.limiter.Allow()
}

func (s *limiterSet) sweep(now time.Time) {
	cutoff := now.Add(-s.idle).UnixNano()
	s.byKey.Range(func(k, v interface{}) bool {
		if v.(*keyedLimiter).lastSeen.Load() < cutoff {
			s.byKey.Delete(k)
		}
		return true
	})
}

// RateLimit provides per-IP token-bucket rate limiting.
// r = requests per second, b = burst size.
func RateLimit(r rate.Limit, b int) gin.HandlerFunc {
	set := newLimiterSet(r, b)
	return func(c *gin.Context) {
		if !set.allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

// ClientLimiter throttles tool invocations per authenticated client. It is
// shared by the REST and WebSocket transports.
type ClientLimiter struct {
	set *limiterSet
}

// NewClientLimiter creates a ClientLimiter; r <= 0 disables limiting.
func NewClientLimiter(r rate.Limit, b int) *ClientLimiter {
	if r <= 0 {
		return &ClientLimiter{}
	}
	return &ClientLimiter{set: newLimiterSet(r, b)}
}

// Allow reports whether clientID may invoke another tool now.
func (l *ClientLimiter) Allow(clientID int64) bool {
	if l == nil || l.set == nil {
		return true
	}
	return l.set.allow(strconv.FormatInt(clientID, 10))
}

// Middleware applies the limiter to authenticated requests, keyed by client
// ID, or by IP for anonymous ones.
func (l *ClientLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.set == nil {
			c.Next()
			return
		}
		key := "ip:" + c.ClientIP()
		if id, ok := GetClientID(c); ok {
			key = strconv.FormatInt(id, 10)
		}
		if !l.set.allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "tool rate limit exceeded"})
			return
		}
		c.Next()
	}
}
