package services

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenkeeper/internal/timex"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSweepExpired_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := refreshtokens.NewMemoryRepository()
	clock := timex.NewFixedClock(epoch)

	require.NoError(t, repo.Insert(ctx, &models.RefreshToken{ID: "a", ExpiresAt: epoch.Add(-time.Hour)}))
	require.NoError(t, repo.Insert(ctx, &models.RefreshToken{ID: "b", ExpiresAt: epoch.Add(-time.Second)}))
	require.NoError(t, repo.Insert(ctx, &models.RefreshToken{ID: "c", ExpiresAt: epoch.Add(time.Hour)}))

	s := NewSweeper(repo, time.Hour, clock, nil, nil)

	n, err := s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.SweepExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n, "second run over a clean set changes nothing")

	c, err := repo.FindByTokenID(ctx, "c")
	require.NoError(t, err)
	assert.True(t, c.IsActive)

	a, err := repo.FindByTokenID(ctx, "a")
	require.NoError(t, err)
	assert.False(t, a.IsActive, "rows are kept after sweeping")
	assert.Equal(t, epoch, *a.RevokedAt)
}

// blockingRepo holds BulkExpire until release is closed.
type blockingRepo struct {
	refreshtokens.Repository
	entered chan struct{}
	release chan struct{}
	calls   atomic.Int32
	err     error
	lossy   bool
}

func (r *blockingRepo) BulkExpire(ctx context.Context, now time.Time) (int64, error) {
	r.calls.Add(1)
	switch {
	case r.entered != nil && r.lossy:
		select {
		case r.entered <- struct{}{}:
		default:
		}
	case r.entered != nil:
		r.entered <- struct{}{}
	}
	if r.release != nil {
		<-r.release
	}
	return 0, r.err
}

func TestSweepExpired_SkipsOverlap(t *testing.T) {
	repo := &blockingRepo{entered: make(chan struct{}), release: make(chan struct{})}
	s := NewSweeper(repo, time.Hour, nil, nil, nil)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.SweepExpired(context.Background())
	}()
	<-repo.entered

	_, err := s.SweepExpired(context.Background())
	assert.ErrorIs(t, err, ErrSweepInProgress)

	close(repo.release)
	<-done
	assert.Equal(t, int32(1), repo.calls.Load())
}

func TestSweepExpired_Error(t *testing.T) {
	repo := &blockingRepo{err: errors.New("db down")}
	s := NewSweeper(repo, time.Hour, nil, nil, nil)

	_, err := s.SweepExpired(context.Background())
	assert.Error(t, err)

	// The guard is released after a failure.
	_, err = s.SweepExpired(context.Background())
	assert.NotErrorIs(t, err, ErrSweepInProgress)
}

func TestSweeperRun_ImmediateAndStops(t *testing.T) {
	repo := &blockingRepo{entered: make(chan struct{}, 1), lossy: true}
	s := NewSweeper(repo, 10*time.Millisecond, nil, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(stopped)
	}()

	select {
	case <-repo.entered:
	case <-time.After(time.Second):
		t.Fatal("first sweep did not run immediately")
	}
	select {
	case <-repo.entered:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not tick")
	}

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop on cancel")
	}
}
