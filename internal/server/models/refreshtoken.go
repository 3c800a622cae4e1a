package models

import "time"

// RefreshToken is the stored state of an issued refresh token. The raw
// signed token is never kept; only its hash and the device it was issued to.
type RefreshToken struct {
	ID         string
	UserID     string
	TokenHash  string
	IPFragment string
	UserAgent  string
	ExpiresAt  time.Time
	IsActive   bool
	RevokedAt  *time.Time
	LastUsed   *time.Time
	CreatedAt  time.Time
}

// Usable reports whether the row is active and not yet past its expiry at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return t.IsActive && now.Before(t.ExpiresAt)
}
