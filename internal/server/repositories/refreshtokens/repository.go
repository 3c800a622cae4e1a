// Package refreshtokens declares the token store: persisted refresh token
// state keyed by the token id embedded in the signed token.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// Repository defines operations over stored refresh token rows.
type Repository interface {
	// Insert stores a new, active row. The row id must be unique.
	Insert(ctx context.Context, token *models.RefreshToken) error

	// FindByTokenID returns the row for id or common.ErrorNotFound.
	FindByTokenID(ctx context.Context, id string) (*models.RefreshToken, error)

	// UpdateActiveFlag deactivates the row and stamps revoked_at. Only the
	// true→false transition exists; asking for active=true yields
	// common.ErrInvalidTransition. The result reports whether this call
	// performed the transition, so revoked_at is written exactly once.
	UpdateActiveFlag(ctx context.Context, id string, active bool, revokedAt time.Time) (bool, error)

	// Touch records advisory last-use time. Missing rows are not an error.
	Touch(ctx context.Context, id string, at time.Time) error

	// BulkExpire deactivates every active row whose expires_at is before now
	// and returns how many rows changed.
	BulkExpire(ctx context.Context, now time.Time) (int64, error)
}
