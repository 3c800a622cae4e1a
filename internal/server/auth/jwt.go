// Package auth signs and parses the two JWT kinds the server hands out:
// short-lived access tokens and long-lived refresh tokens. Each kind has its
// own HMAC secret so one can never be presented in place of the other.
package auth

import (
	"errors"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/timex"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrSecretNotSet      = errors.New("signing secret is not set")
	ErrIncompletePayload = errors.New("token payload is incomplete")
)

// AccessClaims is the body of an access token.
type AccessClaims struct {
	jwt.RegisteredClaims
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// RefreshClaims is the body of a refresh token. TokenID points at the stored row.
type RefreshClaims struct {
	jwt.RegisteredClaims
	TokenID string `json:"token_id"`
	UserID  string `json:"user_id"`
}

type Signer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	clock         timex.Clock
}

func NewSigner(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration, clock timex.Clock) *Signer {
	if clock == nil {
		clock = timex.SystemClock{}
	}
	return &Signer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		clock:         clock,
	}
}

// expiry is rounded to the precision JWT numeric dates carry, so the value
// stored alongside a token matches its exp claim exactly.
func (s *Signer) expiry(now time.Time, ttl time.Duration) time.Time {
	return now.Add(ttl).Truncate(jwt.TimePrecision)
}

// IssueAccess signs {user_id, email, role} and returns the token together
// with the payload as issued (timestamps filled in).
func (s *Signer) IssueAccess(p models.AccessTokenPayload) (string, models.AccessTokenPayload, error) {
	if len(s.accessSecret) == 0 {
		return "", p, ErrSecretNotSet
	}
	if p.UserID == "" || p.Email == "" || p.Role == "" {
		return "", p, ErrIncompletePayload
	}

	now := s.clock.Now().Truncate(jwt.TimePrecision)
	p.IssuedAt = now
	p.ExpiresAt = s.expiry(now, s.accessTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AccessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.UserID,
			IssuedAt:  jwt.NewNumericDate(p.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(p.ExpiresAt),
		},
		UserID: p.UserID,
		Email:  p.Email,
		Role:   p.Role,
	})

	tokenString, err := token.SignedString(s.accessSecret)
	if err != nil {
		return "", p, err
	}
	return tokenString, p, nil
}

// IssueRefresh signs {token_id, user_id} and returns the token and its expiry.
func (s *Signer) IssueRefresh(tokenID, userID string) (string, time.Time, error) {
	if len(s.refreshSecret) == 0 {
		return "", time.Time{}, ErrSecretNotSet
	}
	if tokenID == "" || userID == "" {
		return "", time.Time{}, ErrIncompletePayload
	}

	now := s.clock.Now().Truncate(jwt.TimePrecision)
	expiresAt := s.expiry(now, s.refreshTTL)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, RefreshClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenID: tokenID,
		UserID:  userID,
	})

	tokenString, err := token.SignedString(s.refreshSecret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseAccess verifies an access token. Expired tokens yield
// common.ErrTokenExpired, anything else common.ErrInvalidToken.
func (s *Signer) ParseAccess(tokenString string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	if err := s.parse(tokenString, claims, s.accessSecret); err != nil {
		return nil, err
	}
	if claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

// ParseRefresh verifies a refresh token. The embedded token id must be a UUID.
func (s *Signer) ParseRefresh(tokenString string) (*RefreshClaims, error) {
	claims := &RefreshClaims{}
	if err := s.parse(tokenString, claims, s.refreshSecret); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(claims.TokenID); err != nil || claims.UserID == "" {
		return nil, common.ErrInvalidToken
	}
	return claims, nil
}

func (s *Signer) parse(tokenString string, claims jwt.Claims, secret []byte) error {
	if len(secret) == 0 {
		return ErrSecretNotSet
	}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return common.ErrTokenExpired
		}
		return common.ErrInvalidToken
	}

	if !token.Valid {
		return common.ErrInvalidToken
	}
	return nil
}
