// Package lockout tracks failed logins per username in Redis and locks an
// account once the configured number of consecutive failures is reached.
//
// Two keys exist per username: login:fail:<username> holds the failure count
// and login:lock:<username> holds the unix time the lock lapses. Both carry
// the configured lock duration as TTL, so a lock can never outlive its window.
package lockout

import "time"

// FailureResult is returned by RecordFailure.
type FailureResult struct {
	// Locked is true when this failure triggered (or hit an existing) lock.
	Locked bool `json:"locked"`

	// FailCount is the post-increment failure count.
	FailCount int `json:"failCount"`

	// RemainingAttempts is how many more failures are allowed before a lock.
	RemainingAttempts int `json:"remainingAttempts"`

	// LockMinutes is the configured lock duration.
	LockMinutes int `json:"lockMinutes"`
}

// LockedAccount is one row of the admin lock listing.
type LockedAccount struct {
	Username         string    `json:"username"`
	LockedUntil      time.Time `json:"lockedUntil"`
	RemainingSeconds int       `json:"remainingSeconds"`
	FailCount        int       `json:"failCount"`
}
