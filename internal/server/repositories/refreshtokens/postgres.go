package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX
// (satisfied by *sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Insert stores a new active row.
func (r *PostgresRepository) Insert(ctx context.Context, t *models.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, ip_fragment, user_agent, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at
	`
	err := r.db.QueryRowContext(ctx, query,
		t.ID, t.UserID, t.TokenHash, t.IPFragment, t.UserAgent, t.ExpiresAt).Scan(&t.CreatedAt)
	if err != nil {
		if dbx.IsUniqueViolation(err, "") {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	t.IsActive = true
	return nil
}

// FindByTokenID returns the row for id. If not found, it returns common.ErrorNotFound.
func (r *PostgresRepository) FindByTokenID(ctx context.Context, id string) (*models.RefreshToken, error) {
	query := `
		SELECT id, user_id, token_hash, ip_fragment, user_agent, expires_at, is_active, revoked_at, last_used, created_at
		FROM refresh_tokens
		WHERE id = $1
	`
	t := &models.RefreshToken{}
	var revokedAt, lastUsed sql.NullTime
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&t.ID, &t.UserID, &t.TokenHash, &t.IPFragment, &t.UserAgent,
		&t.ExpiresAt, &t.IsActive, &revokedAt, &lastUsed, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if revokedAt.Valid {
		t.RevokedAt = &revokedAt.Time
	}
	if lastUsed.Valid {
		t.LastUsed = &lastUsed.Time
	}
	return t, nil
}

// UpdateActiveFlag flips an active row to inactive. The WHERE clause keeps
// revoked_at from being rewritten by a second revoker.
func (r *PostgresRepository) UpdateActiveFlag(ctx context.Context, id string, active bool, revokedAt time.Time) (bool, error) {
	if active {
		return false, common.ErrInvalidTransition
	}
	query := `
		UPDATE refresh_tokens
		SET is_active = false, revoked_at = $2
		WHERE id = $1 AND is_active
	`
	res, err := r.db.ExecContext(ctx, query, id, revokedAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n > 0, nil
}

// Touch sets last_used.
func (r *PostgresRepository) Touch(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET last_used = $2
		WHERE id = $1
	`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// BulkExpire deactivates all active rows that expired before now.
func (r *PostgresRepository) BulkExpire(ctx context.Context, now time.Time) (int64, error) {
	query := `
		UPDATE refresh_tokens
		SET is_active = false, revoked_at = $1
		WHERE expires_at < $1 AND is_active
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
