package lockout

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// Handler serves the administrative lock endpoints. Both routes are mounted
// behind the session gate.
type Handler struct {
	service LockoutService
}

// NewHandler creates a new lockout handler.
func NewHandler(service LockoutService) *Handler {
	return &Handler{service: service}
}

// ListLocked returns all locked accounts (GET /auth/locked).
func (h *Handler) ListLocked(c echo.Context) error {
	accounts, err := h.service.ListLocked(c.Request().Context())
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("listing locked accounts: %w", err))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"accounts": accounts,
		"total":    len(accounts),
	})
}

// Unlock clears a lock early (DELETE /auth/locked/:username).
func (h *Handler) Unlock(c echo.Context) error {
	username := strings.TrimSpace(c.Param("username"))
	if username == "" {
		return apperror.NewBadRequest("username is required")
	}

	if err := h.service.Unlock(c.Request().Context(), username); err != nil {
		return apperror.NewInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}
