package auth

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/wayfarer/internal/apperror"
)

// Handler handles HTTP requests for authentication. Handlers are thin: they
// bind the request, call the service, and render the response. No business
// logic lives here.
type Handler struct {
	service AuthService
}

// NewHandler creates a new auth handler with the given service.
func NewHandler(service AuthService) *Handler {
	return &Handler{service: service}
}

// Login processes a password login (POST /auth/login).
func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}
	if strings.TrimSpace(req.Username) == "" || req.Password == "" {
		return apperror.NewBadRequest("username and password are required")
	}

	result, err := h.service.Login(c.Request().Context(), LoginInput{
		Username: req.Username,
		Password: req.Password,
		Client:   clientInfo(c),
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// VerifyTwoFactor finishes a suspended login (POST /auth/2fa/verify).
func (h *Handler) VerifyTwoFactor(c echo.Context) error {
	var req VerifyTwoFactorRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	result, err := h.service.VerifyTwoFactor(c.Request().Context(), req.TempToken, strings.TrimSpace(req.Code), clientInfo(c))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}

// Logout revokes the presented token (POST /auth/logout). If the gate
// renewed the token on this very request, the replacement is revoked too.
func (h *Handler) Logout(c echo.Context) error {
	ctx := c.Request().Context()

	if err := h.service.Logout(ctx, GetToken(c)); err != nil {
		return err
	}
	if renewed := getRenewedToken(c); renewed != "" {
		if err := h.service.Logout(ctx, renewed); err != nil {
			return err
		}
		c.Response().Header().Del(RenewedTokenHeader)
	}
	return c.NoContent(http.StatusNoContent)
}

// Me returns the signed-in user (GET /auth/me).
func (h *Handler) Me(c echo.Context) error {
	claims := GetClaims(c)
	if claims == nil {
		return apperror.NewUnauthorized("authentication required")
	}

	user, err := h.service.GetUser(c.Request().Context(), claims.UserID())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MeResponse{User: *user, TokenExpiresAt: claims.ExpiresAtTime()})
}

// RefreshApp exchanges an app refresh token (POST /app/auth/refresh).
func (h *Handler) RefreshApp(c echo.Context) error {
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return apperror.NewBadRequest("invalid request")
	}

	pair, err := h.service.RefreshApp(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pair)
}

func clientInfo(c echo.Context) ClientInfo {
	return ClientInfo{
		IP:        c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}
