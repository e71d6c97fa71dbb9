package models

import (
	"time"
)

type User struct {
	ID               string
	Username         string
	Email            string
	PasswordHash     string
	TwoFactorSecret  *string // NULL until a setup is confirmed
	TwoFactorEnabled bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// HasTwoFactor reports whether login must stop at the second factor step
func (u *User) HasTwoFactor() bool {
	return u.TwoFactorEnabled && u.TwoFactorSecret != nil && *u.TwoFactorSecret != ""
}
