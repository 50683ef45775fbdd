package secevents

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
)

// Handler serves the security event log to the admin console.
type Handler struct {
	service SecurityEventService
}

// NewHandler creates a new security event handler.
func NewHandler(service SecurityEventService) *Handler {
	return &Handler{service: service}
}

// List returns a page of events (GET /admin/security-events?type=&page=).
func (h *Handler) List(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))

	result, err := h.service.List(c.Request().Context(), c.QueryParam("type"), page)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Stats returns 24 hour aggregates (GET /admin/security-events/stats).
func (h *Handler) Stats(c echo.Context) error {
	stats, err := h.service.Stats(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, stats)
}
