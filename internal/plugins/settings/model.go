// Package settings manages the live security policy for Wayfarer. Values are
// stored as key-value rows in site_settings and parsed into a typed struct on
// every read, so an admin change takes effect on the next login attempt
// without a restart.
package settings

import "time"

// Setting keys in the site_settings table.
const (
	KeyMaxRetry              = "security.max_retry"
	KeyLockMinutes           = "security.lock_minutes"
	KeySessionTimeoutMinutes = "security.session_timeout_minutes"
	KeyTwoFactorEnabled      = "security.two_factor_enabled"
)

// SecuritySettings is the parsed security policy.
type SecuritySettings struct {
	// MaxRetry is the number of consecutive failures that locks an account.
	MaxRetry int `json:"maxRetry"`

	// LockMinutes is how long a lock lasts.
	LockMinutes int `json:"lockMinutes"`

	// SessionTimeoutMinutes is the lifetime of a console bearer token.
	SessionTimeoutMinutes int `json:"sessionTimeoutMinutes"`

	// TwoFactorEnabled is the global second-factor switch. Users without a
	// confirmed secret log in with a password alone even when it is on.
	TwoFactorEnabled bool `json:"twoFactorEnabled"`
}

// LockDuration returns LockMinutes as a duration.
func (s SecuritySettings) LockDuration() time.Duration {
	return time.Duration(s.LockMinutes) * time.Minute
}

// SessionTimeout returns SessionTimeoutMinutes as a duration.
func (s SecuritySettings) SessionTimeout() time.Duration {
	return time.Duration(s.SessionTimeoutMinutes) * time.Minute
}

// UpdateSecurityRequest is the body of PUT /admin/security-settings.
type UpdateSecurityRequest struct {
	MaxRetry              int  `json:"maxRetry"`
	LockMinutes           int  `json:"lockMinutes"`
	SessionTimeoutMinutes int  `json:"sessionTimeoutMinutes"`
	TwoFactorEnabled      bool `json:"twoFactorEnabled"`
}
