package auth

import (
	"github.com/labstack/echo/v4"
)

// RegisterRoutes sets up the auth routes. Login, 2FA verify and app refresh
// are public and wrapped in the login rate limiter; the rest go on the
// authenticated group.
func RegisterRoutes(e *echo.Echo, authed *echo.Group, h *Handler, limit echo.MiddlewareFunc) {
	// Public routes -- no auth required.
	e.POST("/auth/login", h.Login, limit)
	e.POST("/auth/2fa/verify", h.VerifyTwoFactor, limit)
	e.POST("/app/auth/refresh", h.RefreshApp, limit)

	authed.POST("/auth/logout", h.Logout)
	authed.GET("/auth/me", h.Me)
}
