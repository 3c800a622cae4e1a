// Package users is the credential store: persisted user records looked up
// by id or by normalized email.
package users

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// Repository defines the credential store contract. Lookups of missing
// users return common.ErrorNotFound; Create reports a taken email as
// common.ErrorAlreadyExists.
type Repository interface {
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	Create(ctx context.Context, user *models.User) (*models.User, error)
	UpdatePassword(ctx context.Context, id string, passwordHash string) error
}

// NormalizeEmail is the canonical form emails are stored and matched in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
