// Package tokens mints and verifies the signed bearer tokens used by
// Wayfarer. Tokens are HS256 JWTs carrying the subject, issue and expiry
// times. The token string itself is the identity used for revocation and
// for the online session registry.
package tokens

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token type discriminators. Console tokens carry TypeAccess; the app-facing
// pair carries TypeAccess and TypeRefresh.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

// Verification failures. Only these two are surfaced to callers so a client
// can tell whether a refresh flow is worth trying, without learning why a
// signature check failed.
var (
	ErrInvalid = errors.New("token invalid")
	ErrExpired = errors.New("token expired")
)

// Subject identifies the user a token is minted for.
type Subject struct {
	UserID   string
	Username string
}

// Claims is the JWT payload. sub holds the user ID; jti makes two tokens
// minted for the same user in the same second distinct.
type Claims struct {
	Username string `json:"username"`
	Type     string `json:"type"`
	jwt.RegisteredClaims
}

// UserID returns the subject claim.
func (c *Claims) UserID() string {
	return c.Subject
}

// IssuedAtTime returns iat as a time, or the zero time when absent.
func (c *Claims) IssuedAtTime() time.Time {
	if c.IssuedAt == nil {
		return time.Time{}
	}
	return c.IssuedAt.Time
}

// ExpiresAtTime returns exp as a time, or the zero time when absent.
func (c *Claims) ExpiresAtTime() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// Lifetime is the total validity window exp - iat.
func (c *Claims) Lifetime() time.Duration {
	return c.ExpiresAtTime().Sub(c.IssuedAtTime())
}

// TokenPair is the app-facing credential bundle.
type TokenPair struct {
	AccessToken      string    `json:"accessToken"`
	RefreshToken     string    `json:"refreshToken"`
	TokenType        string    `json:"tokenType"`
	AccessExpiresAt  time.Time `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time `json:"refreshExpiresAt"`
}
