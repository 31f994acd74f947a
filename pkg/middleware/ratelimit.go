package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"example.com/travel-insurance/pkg/httpx"
	"example.com/travel-insurance/pkg/logger"
)

// incrWithExpire атомарно увеличивает счётчик окна и ставит TTL при первом запросе.
var incrWithExpire = redis.NewScript(`
	local current = redis.call("INCR", KEYS[1])
	if current == 1 then
		redis.call("EXPIRE", KEYS[1], ARGV[1])
	end
	return current
`)

// RateLimiter ограничивает число запросов с одного IP в фиксированном окне.
// Счётчики живут в Redis, поэтому лимит общий для всех реплик сервиса.
type RateLimiter struct {
	redis  *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRateLimiter создаёт limiter. prefix разделяет счётчики сервисов.
func NewRateLimiter(rdb *redis.Client, prefix string, limit int, window time.Duration) *RateLimiter {
	if limit <= 0 {
		limit = 100
	}
	if window <= 0 {
		window = time.Minute
	}
	return &RateLimiter{redis: rdb, prefix: prefix, limit: limit, window: window}
}

// Handle возвращает gin middleware.
// Ошибка Redis не блокирует запрос (fail-open).
func (l *RateLimiter) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		clientIP := c.ClientIP()

		count, err := l.hit(ctx, clientIP)
		if err != nil {
			logger.Ctx(ctx).Warn().Err(err).Msg("Ошибка проверки rate limit, запрос пропущен")
			c.Next()
			return
		}

		remaining := l.limit - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(l.limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > l.limit {
			logger.Ctx(ctx).Warn().
				Str("client_ip", clientIP).
				Int("limit", l.limit).
				Msg("Rate limit превышен")

			seconds := int(l.window.Seconds())
			c.Header("Retry-After", strconv.Itoa(seconds))
			httpx.AbortWithError(c, http.StatusTooManyRequests, "rate_limit_exceeded",
				fmt.Sprintf("Превышен лимит запросов. Попробуйте через %d секунд", seconds))
			return
		}

		c.Next()
	}
}

func (l *RateLimiter) hit(ctx context.Context, clientIP string) (int, error) {
	key := fmt.Sprintf("%s:rate:%s", l.prefix, clientIP)
	return incrWithExpire.Run(ctx, l.redis, []string{key}, int(l.window.Seconds())).Int()
}
