package httpmiddleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

const sweepEvery = time.Minute

// TokenBucket is an in-memory per-client rate limiter. Buckets refill
// continuously at perMinute tokens per minute up to capacity. Buckets that
// have refilled completely are dropped, at most once per sweepEvery.
type TokenBucket struct {
	capacity  float64
	rate      float64
	mu        sync.Mutex
	state     map[string]*bucket
	now       func() time.Time
	lastSweep time.Time
}

type bucket struct {
	tokens float64
	last   time.Time
}

// NewTokenBucket creates a limiter with capacity tokens and a refill rate
// per minute. A non-positive capacity defaults to the rate.
func NewTokenBucket(capacity, perMinute int) *TokenBucket {
	if capacity <= 0 {
		capacity = perMinute
	}
	return &TokenBucket{
		capacity: float64(capacity),
		rate:     float64(perMinute),
		state:    make(map[string]*bucket),
		now:      time.Now,
	}
}

// GinMiddleware enforces per-IP limits. A limiter with a non-positive rate
// lets everything through.
func (l *TokenBucket) GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l.rate <= 0 {
			c.Next()
			return
		}
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}
		if ok, wait := l.allow(ip); !ok {
			c.Header("Retry-After", strconv.Itoa(int(wait.Seconds())+1))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}

func (l *TokenBucket) allow(key string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSweep) >= sweepEvery {
		l.sweep(now)
	}
	b, ok := l.state[key]
	if !ok {
		b = &bucket{tokens: l.capacity, last: now}
		l.state[key] = b
	}
	b.tokens += now.Sub(b.last).Minutes() * l.rate
	if b.tokens > l.capacity {
		b.tokens = l.capacity
	}
	b.last = now
	if b.tokens < 1 {
		missing := 1 - b.tokens
		return false, time.Duration(missing / l.rate * float64(time.Minute))
	}
	b.tokens--
	return true, 0
}

// sweep forgets clients whose bucket would be full by now; a new bucket
// starts full, so dropping them changes nothing.
func (l *TokenBucket) sweep(now time.Time) {
	for key, b := range l.state {
		if b.tokens+now.Sub(b.last).Minutes()*l.rate >= l.capacity {
			delete(l.state, key)
		}
	}
	l.lastSweep = now
}
