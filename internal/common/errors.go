// Package common defines sentinel errors shared by the repository and service
// layers of tokenkeeper. Callers should use errors.Is to match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// ErrInvalidTransition is returned when a caller asks a store to move a
	// refresh token from inactive back to active.
	ErrInvalidTransition = errors.New("invalid state transition")

	// Token errors produced by the signing layer.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
