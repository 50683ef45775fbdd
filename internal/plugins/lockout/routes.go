package lockout

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the lock administration endpoints on an
// authenticated group.
func RegisterRoutes(authed *echo.Group, h *Handler) {
	authed.GET("/auth/locked", h.ListLocked)
	authed.DELETE("/auth/locked/:username", h.Unlock)
}
