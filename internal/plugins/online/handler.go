package online

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
	"github.com/keyxmakerx/wayfarer/internal/plugins/blacklist"
)

// Handler serves the online session administration endpoints.
type Handler struct {
	registry OnlineRegistry
}

// NewHandler creates a new online handler.
func NewHandler(registry OnlineRegistry) *Handler {
	return &Handler{registry: registry}
}

// List returns live sessions (GET /auth/online).
func (h *Handler) List(c echo.Context) error {
	entries, err := h.registry.List(c.Request().Context())
	if err != nil {
		return apperror.NewInternal(fmt.Errorf("listing online sessions: %w", err))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"sessions": entries,
		"total":    len(entries),
	})
}

// ForceLogout ends a session (DELETE /auth/online/:token).
func (h *Handler) ForceLogout(c echo.Context) error {
	token := c.Param("token")
	if token == "" {
		return apperror.NewBadRequest("token is required")
	}

	err := h.registry.ForceLogout(c.Request().Context(), token)
	if errors.Is(err, blacklist.ErrUnreadableToken) {
		return apperror.NewBadRequest("token is not a session token")
	}
	if err != nil {
		return apperror.NewInternal(err)
	}
	return c.NoContent(http.StatusNoContent)
}
