// Package secevents keeps a durable log of authentication security events in
// MariaDB. Redis state (counters, locks, revocations) expires; this log is
// what an administrator reads after the fact.
package secevents

import "time"

// Event types follow the "resource.verb" pattern for filtering.
const (
	EventLoginSuccess    = "login.success"
	EventLoginFailed     = "login.failed"
	EventAccountLocked   = "account.locked"
	EventTwoFactorFailed = "twofactor.failed"
	EventChallengeIssued = "twofactor.challenge"
	EventRefreshRejected = "refresh.rejected"
)

// Event is a single security event.
type Event struct {
	ID        int64          `json:"id"`
	EventType string         `json:"eventType"`
	UserID    string         `json:"userId,omitempty"`
	Username  string         `json:"username,omitempty"`
	IPAddress string         `json:"ipAddress"`
	UserAgent string         `json:"userAgent,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

// EventPage is one page of the event log, most recent first.
type EventPage struct {
	Events  []Event `json:"events"`
	Total   int     `json:"total"`
	Page    int     `json:"page"`
	PerPage int     `json:"perPage"`
}

// Stats holds 24 hour aggregates for the admin console.
type Stats struct {
	TotalEvents         int `json:"totalEvents"`
	FailedLogins24h     int `json:"failedLogins24h"`
	SuccessfulLogins24h int `json:"successfulLogins24h"`
	Lockouts24h         int `json:"lockouts24h"`
	UniqueIPs24h        int `json:"uniqueIps24h"`
}
