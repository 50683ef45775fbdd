// Package middleware provides HTTP middleware for Wayfarer.
// ratelimit.go implements a per-IP fixed-window limiter stored in Redis so
// every instance shares one budget. Used on the public auth endpoints.
package middleware

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// rateLimitKeyPrefix is the Redis key prefix for per-IP counters.
const rateLimitKeyPrefix = "ratelimit:"

// windowCounter increments the per-IP counter and starts its window on the
// first request.
var windowCounter = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return n
`)

// RateLimit returns middleware that limits requests per IP to maxRequests
// within the given window. scope separates budgets of different endpoint
// groups. Returns 429 when exceeded. If Redis is unreachable the request is
// let through and the fault logged.
func RateLimit(rdb *redis.Client, scope string, maxRequests int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			key := rateLimitKeyPrefix + scope + ":" + ip

			count, err := windowCounter.Run(c.Request().Context(), rdb, []string{key}, window.Milliseconds()).Int()
			if err != nil {
				slog.Warn("rate limiter unavailable",
					slog.String("scope", scope),
					slog.String("remote_ip", ip),
					slog.Any("error", err),
				)
				return next(c)
			}

			if count > maxRequests {
				return apperror.NewTooManyRequests("rate limit exceeded, please try again later")
			}
			return next(c)
		}
	}
}
