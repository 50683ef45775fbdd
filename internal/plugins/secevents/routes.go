package secevents

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the security event log on the authenticated group.
func RegisterRoutes(authed *echo.Group, h *Handler) {
	authed.GET("/admin/security-events", h.List)
	authed.GET("/admin/security-events/stats", h.Stats)
}
