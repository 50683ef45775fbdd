// Package auth runs the console login flow and the per-request session gate
// for Wayfarer. Login checks the lockout state, verifies the password,
// optionally suspends on a TOTP challenge and finally mints a bearer token.
// Every authenticated request passes through the gate, which rejects
// revoked tokens and renews tokens that are about to expire or just did.
//
// This is a CORE plugin -- always enabled, cannot be disabled.
package auth

import (
	"time"
)

// User is the credential record read at login. The users table is owned by
// user management; this plugin never writes to it except last_login_at.
type User struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	DisplayName  string     `json:"displayName"`
	PasswordHash string     `json:"-"` // Never expose in JSON responses.
	TOTPEnabled  bool       `json:"twoFactorEnabled"`
	IsDisabled   bool       `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
	LastLoginAt  *time.Time `json:"lastLoginAt,omitempty"`
}

// --- Request DTOs (bound from HTTP requests) ---

// LoginRequest is the body of POST /auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// VerifyTwoFactorRequest is the body of POST /auth/2fa/verify.
type VerifyTwoFactorRequest struct {
	TempToken string `json:"tempToken"`
	Code      string `json:"code"`
}

// RefreshRequest is the body of POST /app/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// --- Service Input DTOs (passed from handler to service) ---

// ClientInfo describes the caller for the online registry.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// LoginInput is the validated input for a password login.
type LoginInput struct {
	Username string
	Password string
	Client   ClientInfo
}

// --- Responses ---

// LoginResult is either a final token or a pending second-factor challenge.
type LoginResult struct {
	Token     string     `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`

	RequireTwoFactor bool   `json:"requireTwoFactor,omitempty"`
	TempToken        string `json:"tempToken,omitempty"`
}

// MeResponse is returned by GET /auth/me.
type MeResponse struct {
	User
	TokenExpiresAt time.Time `json:"tokenExpiresAt"`
}
