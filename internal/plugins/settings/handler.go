package settings

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// Handler serves the admin security settings endpoints.
type Handler struct {
	service SettingsService
}

// NewHandler creates a new settings handler.
func NewHandler(service SettingsService) *Handler {
	return &Handler{service: service}
}

// GetSecurity returns the live security policy (GET /admin/security-settings).
func (h *Handler) GetSecurity(c echo.Context) error {
	return c.JSON(http.StatusOK, h.service.SecuritySettings(c.Request().Context()))
}

// UpdateSecurity replaces the security policy (PUT /admin/security-settings).
func (h *Handler) UpdateSecurity(c echo.Context) error {
	var req UpdateSecurityRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	updated, err := h.service.UpdateSecuritySettings(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, updated)
}
