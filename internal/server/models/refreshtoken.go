package models

import "time"

// RefreshToken is a single-use token. It is deleted when exchanged.
type RefreshToken struct {
	Token     string
	UserID    string
	ExpiresAt time.Time
}

func (t *RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
