package online

import "github.com/labstack/echo/v4"

// RegisterRoutes mounts the online session endpoints on an authenticated
// group.
func RegisterRoutes(authed *echo.Group, h *Handler) {
	authed.GET("/auth/online", h.List)
	authed.DELETE("/auth/online/:token", h.ForceLogout)
}
