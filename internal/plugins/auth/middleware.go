package auth

import (
	"log/slog"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/keyxmakerx/wayfarer/internal/plugins/online"
	"github.com/keyxmakerx/wayfarer/internal/plugins/tokens"
)

// RenewedTokenHeader carries a replacement token. Clients must adopt it for
// subsequent requests.
const RenewedTokenHeader = "X-Renewed-Token"

// Context keys for storing session data in Echo context. Other plugins
// use these keys (via the exported getter functions below) to access
// the authenticated user's information.
const (
	contextKeyClaims  = "auth_claims"
	contextKeyUserID  = "auth_user_id"
	contextKeyToken   = "auth_token"
	contextKeyRenewed = "auth_renewed_token"
)

// RequireAuth returns middleware that runs the session gate on the bearer
// token and injects the claims into the request context. A renewed token is
// written to RenewedTokenHeader and its online entry is carried over.
func RequireAuth(gate *Gate, sessions online.OnlineRegistry) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			token := bearerToken(c)

			d := gate.Check(ctx, token)
			if d.Outcome == Rejected {
				return d.Err
			}

			if d.Renewed() {
				c.Response().Header().Set(RenewedTokenHeader, d.RenewedToken)
				c.Set(contextKeyRenewed, d.RenewedToken)

				if err := sessions.Renew(ctx, token, d.RenewedToken, d.RenewedClaims.Lifetime()); err != nil {
					slog.Warn("carrying online entry to renewed token failed",
						slog.String("user_id", d.Claims.UserID()),
						slog.Any("error", err),
					)
				}
				slog.Debug("token renewed",
					slog.String("user_id", d.Claims.UserID()),
					slog.String("outcome", d.Outcome.String()),
				)
			}

			c.Set(contextKeyClaims, d.Claims)
			c.Set(contextKeyUserID, d.Claims.UserID())
			c.Set(contextKeyToken, token)

			return next(c)
		}
	}
}

// bearerToken extracts the token from "Authorization: Bearer <token>".
func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

// --- Exported getters for other plugins ---

// GetClaims retrieves the presented token's claims from the Echo context.
// Returns nil if the request is not authenticated (middleware not applied).
func GetClaims(c echo.Context) *tokens.Claims {
	claims, ok := c.Get(contextKeyClaims).(*tokens.Claims)
	if !ok {
		return nil
	}
	return claims
}

// GetUserID retrieves the authenticated user's ID from the Echo context.
// Returns empty string if the request is not authenticated.
func GetUserID(c echo.Context) string {
	id, ok := c.Get(contextKeyUserID).(string)
	if !ok {
		return ""
	}
	return id
}

// GetToken returns the bearer token that authenticated the request.
func GetToken(c echo.Context) string {
	tok, _ := c.Get(contextKeyToken).(string)
	return tok
}

// GetIdentity returns the user ID and username of the authenticated caller.
func GetIdentity(c echo.Context) (userID, username string) {
	claims := GetClaims(c)
	if claims == nil {
		return "", ""
	}
	return claims.UserID(), claims.Username
}

// getRenewedToken returns the token minted for this request, if any.
func getRenewedToken(c echo.Context) string {
	tok, _ := c.Get(contextKeyRenewed).(string)
	return tok
}
