package twofactor

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// IdentityFunc reads the authenticated user from the request context. The
// session gate middleware provides it.
type IdentityFunc func(c echo.Context) (userID, username string)

// Handler serves the 2FA enrollment endpoints for the signed-in user.
type Handler struct {
	service  TwoFactorService
	identity IdentityFunc
}

// NewHandler creates a new two-factor handler.
func NewHandler(service TwoFactorService, identity IdentityFunc) *Handler {
	return &Handler{service: service, identity: identity}
}

// Setup starts enrollment (GET /auth/2fa/setup).
func (h *Handler) Setup(c echo.Context) error {
	userID, username := h.identity(c)
	if userID == "" {
		return apperror.NewUnauthorized("authentication required")
	}

	result, err := h.service.BeginSetup(c.Request().Context(), userID, username)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Enable confirms enrollment (POST /auth/2fa/enable).
func (h *Handler) Enable(c echo.Context) error {
	userID, _ := h.identity(c)
	if userID == "" {
		return apperror.NewUnauthorized("authentication required")
	}

	var req CodeRequest
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return apperror.NewBadRequest("code is required")
	}

	if err := h.service.Enable(c.Request().Context(), userID, req.Code); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"twoFactorEnabled": true})
}

// Disable removes enrollment (POST /auth/2fa/disable).
func (h *Handler) Disable(c echo.Context) error {
	userID, _ := h.identity(c)
	if userID == "" {
		return apperror.NewUnauthorized("authentication required")
	}

	var req CodeRequest
	if err := c.Bind(&req); err != nil || req.Code == "" {
		return apperror.NewBadRequest("code is required")
	}

	if err := h.service.Disable(c.Request().Context(), userID, req.Code); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, map[string]bool{"twoFactorEnabled": false})
}
