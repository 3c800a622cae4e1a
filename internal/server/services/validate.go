package services

import (
	"net/mail"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minNameLen     = 2
	maxNameLen     = 50
	minPasswordLen = 8
	maxPasswordLen = 128
	maxEmailLen    = 254
)

// RegisterInput is what a caller supplies to create an account.
type RegisterInput struct {
	Email           string
	FirstName       string
	LastName        string
	Password        string
	ConfirmPassword string
}

func (in *RegisterInput) normalize() {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
}

func (in *RegisterInput) validate() error {
	if err := validateEmail(in.Email); err != nil {
		return err
	}
	if err := validateName("first name", in.FirstName); err != nil {
		return err
	}
	if err := validateName("last name", in.LastName); err != nil {
		return err
	}
	return validatePassword(in.Password, in.ConfirmPassword)
}

func validateEmail(email string) error {
	if email == "" {
		return validationError("email is required")
	}
	if len(email) > maxEmailLen {
		return validationError("email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return validationError("email is invalid")
	}
	return nil
}

func validateName(field, name string) error {
	n := utf8.RuneCountInString(name)
	if n < minNameLen || n > maxNameLen {
		return validationError(field + " must be between 2 and 50 characters")
	}
	return nil
}

// validatePassword checks length, character classes and the confirmation.
func validatePassword(password, confirm string) error {
	n := utf8.RuneCountInString(password)
	if n < minPasswordLen || n > maxPasswordLen {
		return validationError("password must be between 8 and 128 characters")
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return validationError("password must contain upper and lower case letters, a digit and a symbol")
	}

	if password != confirm {
		return ErrPasswordMismatch
	}
	return nil
}
