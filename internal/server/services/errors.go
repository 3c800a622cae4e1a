package services

import (
	"errors"
	"fmt"
)

// Kind is the closed set of outcomes a service call can fail with.
type Kind string

const (
	KindInternal              Kind = "internal"
	KindConfiguration         Kind = "configuration"
	KindValidation            Kind = "validation"
	KindEmptyToken            Kind = "empty_token"
	KindMalformedToken        Kind = "malformed_token"
	KindExpiredToken          Kind = "expired_token"
	KindRevokedToken          Kind = "revoked_token"
	KindDeviceMismatch        Kind = "device_mismatch"
	KindTokenNotFound         Kind = "token_not_found"
	KindAuthenticationError   Kind = "authentication_error"
	KindUserNotFound          Kind = "user_not_found"
	KindDuplicateRegistration Kind = "duplicate_registration"
	KindPasswordMismatch      Kind = "password_mismatch"
	KindInvalidCredentials    Kind = "invalid_credentials"
	KindForbidden             Kind = "forbidden"
	KindRateLimited           Kind = "rate_limited"
)

// Class groups kinds by how they surface to callers.
type Class int

const (
	ClassServer Class = iota
	ClassValidation
	ClassAuth
	ClassNotFound
)

func (c Class) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassAuth:
		return "auth"
	case ClassNotFound:
		return "not_found"
	default:
		return "server"
	}
}

// Class returns the classification of k. Unknown kinds are server errors.
func (k Kind) Class() Class {
	switch k {
	case KindValidation, KindDuplicateRegistration, KindPasswordMismatch, KindRateLimited:
		return ClassValidation
	case KindEmptyToken, KindMalformedToken, KindExpiredToken, KindRevokedToken,
		KindDeviceMismatch, KindTokenNotFound, KindAuthenticationError,
		KindInvalidCredentials, KindForbidden:
		return ClassAuth
	case KindUserNotFound:
		return ClassNotFound
	default:
		return ClassServer
	}
}

// Error is the typed failure returned by every service operation.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrRevokedToken)
// works whatever the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrEmptyToken            = &Error{Kind: KindEmptyToken, Msg: "refresh token is required"}
	ErrMalformedToken        = &Error{Kind: KindMalformedToken, Msg: "token is malformed"}
	ErrExpiredToken          = &Error{Kind: KindExpiredToken, Msg: "token has expired"}
	ErrRevokedToken          = &Error{Kind: KindRevokedToken, Msg: "token has been revoked"}
	ErrDeviceMismatch        = &Error{Kind: KindDeviceMismatch, Msg: "token was issued to another device"}
	ErrTokenNotFound         = &Error{Kind: KindTokenNotFound, Msg: "token not found"}
	ErrAuthentication        = &Error{Kind: KindAuthenticationError, Msg: "authentication failed"}
	ErrUserNotFound          = &Error{Kind: KindUserNotFound, Msg: "user not found"}
	ErrDuplicateRegistration = &Error{Kind: KindDuplicateRegistration, Msg: "email is already registered"}
	ErrPasswordMismatch      = &Error{Kind: KindPasswordMismatch, Msg: "passwords do not match"}
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials, Msg: "invalid email or password"}
	ErrForbidden             = &Error{Kind: KindForbidden, Msg: "insufficient role"}
	ErrRateLimited           = &Error{Kind: KindRateLimited, Msg: "too many requests"}
)

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

func internalError(msg string, err error) *Error {
	return newError(KindInternal, msg, err)
}

func validationError(msg string) *Error {
	return newError(KindValidation, msg, nil)
}

// KindOf extracts the kind of err. Errors that are not *Error are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ClassOf is KindOf(err).Class().
func ClassOf(err error) Class {
	return KindOf(err).Class()
}
