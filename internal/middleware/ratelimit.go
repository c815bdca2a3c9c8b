package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"tempmail/capture/internal/monitoring"
)

// IPRateLimiter 按客户端 IP 的令牌桶限流器
type IPRateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*ipLimiter
	rate     rate.Limit
	burst    int
	idleTTL  time.Duration
	now      func() time.Time
}

type ipLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewIPRateLimiter 创建限流器
//
// 参数:
//   - perSecond: 每个 IP 每秒补充的令牌数，<= 0 表示不限流
//   - burst: 桶容量，<= 0 时等于 perSecond
func NewIPRateLimiter(perSecond float64, burst int) *IPRateLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst <= 0 {
		burst = int(perSecond)
		if burst < 1 {
			burst = 1
		}
	}
	return &IPRateLimiter{
		limiters: make(map[string]*ipLimiter),
		rate:     limit,
		burst:    burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Allow 判断该 IP 是否还有令牌
func (l *IPRateLimiter) Allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	entry, ok := l.limiters[ip]
	if !ok {
		l.evictIdle(now)
		entry = &ipLimiter{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

// Len 当前跟踪的 IP 数量
func (l *IPRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// evictIdle 在新 IP 进入时顺带清理长期空闲的条目，调用方持有锁
func (l *IPRateLimiter) evictIdle(now time.Time) {
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastSeen) > l.idleTTL {
			delete(l.limiters, ip)
		}
	}
}

// RateLimitByIP 限流中间件，超限返回 429
func RateLimitByIP(limiter *IPRateLimiter, endpoint string, metrics *monitoring.Metrics) gin.HandlerFunc {
	retryAfter := "1"
	if limiter.rate > 0 && limiter.rate < 1 {
		retryAfter = strconv.Itoa(int(1/float64(limiter.rate)) + 1)
	}
	return func(c *gin.Context) {
		if !limiter.Allow(c.ClientIP()) {
			if metrics != nil {
				metrics.RecordRateLimitBlock(endpoint)
			}
			c.Header("Retry-After", retryAfter)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
