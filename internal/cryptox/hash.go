// Package cryptox implements the one-way digests used for passwords and
// refresh tokens.
//
// Secrets are first reduced with SHA-256 and then hashed with bcrypt at a
// caller-supplied cost. The pre-digest keeps inputs under bcrypt's 72-byte
// limit, so long signed tokens are covered in full.
package cryptox

import (
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

const (
	MinCost     = bcrypt.MinCost
	MaxCost     = bcrypt.MaxCost
	DefaultCost = bcrypt.DefaultCost
)

// ErrMismatch is returned by Compare when the secret does not match the hash.
var ErrMismatch = errors.New("hash mismatch")

// ErrInvalidCost is returned for costs outside bcrypt bounds.
var ErrInvalidCost = fmt.Errorf("cost must be between %d and %d", MinCost, MaxCost)

func prehash(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	out := make([]byte, base64.RawStdEncoding.EncodedLen(len(sum)))
	base64.RawStdEncoding.Encode(out, sum[:])
	return out
}

// Hash returns the salted digest of secret.
func Hash(secret string, cost int) (string, error) {
	if cost < MinCost || cost > MaxCost {
		return "", ErrInvalidCost
	}
	h, err := bcrypt.GenerateFromPassword(prehash(secret), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Compare checks secret against a digest produced by Hash.
// It returns ErrMismatch on a clean mismatch and another error for a
// malformed digest.
func Compare(hash, secret string) error {
	err := bcrypt.CompareHashAndPassword([]byte(hash), prehash(secret))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrMismatch
	}
	return err
}

// ValidCost reports whether cost is accepted by Hash.
func ValidCost(cost int) bool {
	return cost >= MinCost && cost <= MaxCost
}
