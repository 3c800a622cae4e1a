package models

import "time"

// User is a persisted credential record. Email is unique and stored
// normalized (trimmed, lower-cased).
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
	FirstName    string
	LastName     string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AccessTokenPayload is the identity carried by an access token. It is never persisted.
type AccessTokenPayload struct {
	UserID    string
	Email     string
	Role      string
	IssuedAt  time.Time
	ExpiresAt time.Time
}
