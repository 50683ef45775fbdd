// Package middleware provides HTTP middleware for the Wayfarer Echo server.
// Middleware is applied globally (all routes) or per-route group depending
// on the middleware type. See internal/app/app.go for registration.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// LoggerConfig configures RequestLogger.
type LoggerConfig struct {
	// UserID returns the authenticated user for the request, or "". Called
	// after the handler so the session gate has already run.
	UserID func(c echo.Context) string

	// RenewedHeader is the response header carrying a renewed token. Only
	// its presence is logged, never the value.
	RenewedHeader string
}

// securityTags marks responses that belong in the security trail.
var securityTags = map[int]string{
	http.StatusUnauthorized:    "auth",
	http.StatusLocked:          "lockout",
	http.StatusTooManyRequests: "ratelimit",
}

// RequestLogger returns middleware that logs every HTTP request with method,
// path, status, latency and client IP. The query string is not logged since
// it may carry tokens.
func RequestLogger(cfg LoggerConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			// Let the error handler write the response first so the real
			// status is logged.
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.String("path", req.URL.Path),
				slog.Int("status", res.Status),
				slog.Duration("latency", time.Since(start)),
				slog.String("remote_ip", c.RealIP()),
			}
			if cfg.UserID != nil {
				if userID := cfg.UserID(c); userID != "" {
					attrs = append(attrs, slog.String("user_id", userID))
				}
			}
			if cfg.RenewedHeader != "" && res.Header().Get(cfg.RenewedHeader) != "" {
				attrs = append(attrs, slog.Bool("token_renewed", true))
			}
			if tag, ok := securityTags[res.Status]; ok {
				attrs = append(attrs, slog.String("security", tag))
			}

			level := slog.LevelInfo
			if res.Status >= 500 {
				level = slog.LevelError
			} else if res.Status >= 400 {
				level = slog.LevelWarn
			}

			slog.LogAttrs(req.Context(), level, "request", attrs...)

			// The error was handled above.
			return nil
		}
	}
}
