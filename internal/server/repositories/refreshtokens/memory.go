package refreshtokens

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
)

// MemoryRepository is an in-process Repository with the same transition
// rules as the PostgreSQL one. Row updates are serialized by a mutex.
type MemoryRepository struct {
	mu   sync.Mutex
	rows map[string]*models.RefreshToken
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{rows: make(map[string]*models.RefreshToken)}
}

func (r *MemoryRepository) Insert(ctx context.Context, t *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.rows[t.ID]; ok {
		return common.ErrorAlreadyExists
	}
	t.IsActive = true
	t.CreatedAt = time.Now().UTC()
	row := *t
	r.rows[t.ID] = &row
	return nil
}

func (r *MemoryRepository) FindByTokenID(ctx context.Context, id string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return copyRow(row), nil
}

func (r *MemoryRepository) UpdateActiveFlag(ctx context.Context, id string, active bool, revokedAt time.Time) (bool, error) {
	if active {
		return false, common.ErrInvalidTransition
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.rows[id]
	if !ok || !row.IsActive {
		return false, nil
	}
	row.IsActive = false
	row.RevokedAt = &revokedAt
	return true, nil
}

func (r *MemoryRepository) Touch(ctx context.Context, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if row, ok := r.rows[id]; ok {
		row.LastUsed = &at
	}
	return nil
}

func (r *MemoryRepository) BulkExpire(ctx context.Context, now time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, row := range r.rows {
		if row.IsActive && row.ExpiresAt.Before(now) {
			row.IsActive = false
			at := now
			row.RevokedAt = &at
			n++
		}
	}
	return n, nil
}

// All returns copies of every stored row.
func (r *MemoryRepository) All() []*models.RefreshToken {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*models.RefreshToken, 0, len(r.rows))
	for _, row := range r.rows {
		out = append(out, copyRow(row))
	}
	return out
}

func copyRow(row *models.RefreshToken) *models.RefreshToken {
	c := *row
	if row.RevokedAt != nil {
		t := *row.RevokedAt
		c.RevokedAt = &t
	}
	if row.LastUsed != nil {
		t := *row.LastUsed
		c.LastUsed = &t
	}
	return &c
}
