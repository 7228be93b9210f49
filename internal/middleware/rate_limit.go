package middleware

import (
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	appErrors "github.com/noah-isme/timetable-api/pkg/errors"
	"github.com/noah-isme/timetable-api/pkg/response"
)

const minLimiterIdle = 10 * time.Minute

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter keeps one token bucket per client IP. Buckets idle long enough to have refilled
// are swept on access so the map tracks only recent clients.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*clientLimiter
	every     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
	logger    *zap.Logger
}

// NewRateLimiter allows perMinute requests per client with the given burst.
// A non-positive perMinute disables limiting.
func NewRateLimiter(perMinute, burst int, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	idle := minLimiterIdle
	if perMinute > 0 {
		interval := time.Minute / time.Duration(perMinute)
		limit = rate.Every(interval)
		if refill := 2 * time.Duration(burst) * interval; refill > idle {
			idle = refill
		}
	}
	return &RateLimiter{
		limiters:  make(map[string]*clientLimiter),
		every:     limit,
		burst:     burst,
		idle:      idle,
		lastSweep: time.Now(),
		now:       time.Now,
		logger:    logger,
	}
}

func (l *RateLimiter) limiterFor(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.idle {
		l.sweep(now)
	}
	entry, ok := l.limiters[ip]
	if !ok {
		entry = &clientLimiter{limiter: rate.NewLimiter(l.every, l.burst)}
		l.limiters[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter
}

// sweep drops clients not seen within the idle window. Callers hold l.mu.
func (l *RateLimiter) sweep(now time.Time) {
	for ip, entry := range l.limiters {
		if now.Sub(entry.lastSeen) >= l.idle {
			delete(l.limiters, ip)
		}
	}
	l.lastSweep = now
}

// Handler rejects requests over budget with 429 and a Retry-After hint.
func (l *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if l == nil || l.every == rate.Inf {
			c.Next()
			return
		}
		ip := c.ClientIP()
		limiter := l.limiterFor(ip)
		reservation := limiter.Reserve()
		if delay := reservation.Delay(); delay > 0 {
			reservation.Cancel()
			l.logger.Warn("rate limit exceeded", zap.String("ip", ip), zap.String("route", c.FullPath()))
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			response.Error(c, appErrors.Clone(appErrors.ErrTooManyRequests, "too many generation requests, try again later"))
			c.Abort()
			return
		}
		c.Next()
	}
}
