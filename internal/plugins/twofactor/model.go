// Package twofactor manages the TOTP second factor: the short-lived
// challenge that suspends a login between the password and the code, and the
// setup flow that binds a secret to an account.
package twofactor

// Identity is the authenticated-but-not-finalized user held by a pending
// challenge.
type Identity struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// SetupResult is returned when a user starts enrolling an authenticator.
type SetupResult struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauthUrl"`

	// QRCode is a data URL holding a PNG of URL.
	QRCode string `json:"qrCode"`
}

// CodeRequest carries a one-time code for enable/disable.
type CodeRequest struct {
	Code string `json:"code"`
}
