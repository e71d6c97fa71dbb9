package models

import "time"

// Session is the server-side half of a login. The client only ever holds the raw
// token; TokenHash is what gets persisted and looked up.
type Session struct {
	TokenHash           string
	UserID              string
	PendingSecondFactor bool
	PendingSetupSecret  *string // unconfirmed TOTP secret from an in-flight setup
	CreatedAt           time.Time
	ExpiresAt           time.Time
}

// IsExpired reports whether the fixed lifetime has elapsed at now
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
