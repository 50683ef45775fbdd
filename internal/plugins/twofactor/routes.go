package twofactor

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the enrollment endpoints on an authenticated group.
// POST /auth/2fa/verify finalizes a login and lives with the auth routes.
func RegisterRoutes(authed *echo.Group, h *Handler) {
	authed.GET("/auth/2fa/setup", h.Setup)
	authed.POST("/auth/2fa/enable", h.Enable)
	authed.POST("/auth/2fa/disable", h.Disable)
}
