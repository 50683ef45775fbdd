package settings

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the settings endpoints on an authenticated group.
func RegisterRoutes(authed *echo.Group, h *Handler) {
	authed.GET("/admin/security-settings", h.GetSecurity)
	authed.PUT("/admin/security-settings", h.UpdateSecurity)
}
