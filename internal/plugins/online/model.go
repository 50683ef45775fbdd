// Package online keeps a best-effort directory of live sessions for
// administrators. Each entry lives under its token with the session's own
// timeout as TTL, so an expired session drops off the list without a cleanup
// job.
package online

import (
	"strings"
	"time"

	"github.com/mssola/useragent"
)

// Entry is one live session.
type Entry struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Username  string    `json:"username"`
	IP        string    `json:"ip"`
	Browser   string    `json:"browser"`
	OS        string    `json:"os"`
	LoginTime time.Time `json:"loginTime"`
}

// NewEntry builds an entry, deriving browser and OS from the User-Agent.
func NewEntry(userID, username, ip, userAgent string, loginTime time.Time) Entry {
	e := Entry{
		UserID:    userID,
		Username:  username,
		IP:        ip,
		LoginTime: loginTime.UTC(),
	}
	if userAgent == "" {
		return e
	}

	ua := useragent.New(userAgent)
	name, version := ua.Browser()
	e.Browser = strings.TrimSpace(name + " " + version)
	e.OS = ua.OS()
	return e
}
