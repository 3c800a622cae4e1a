package services

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tokenkeeper/internal/cryptox"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/config"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tokenkeeper/internal/timex"
	"github.com/stretchr/testify/require"
)

const (
	testIP  = "203.0.113.77"
	testUA  = "UA-1"
	testPwd = "Aa1!aaaa"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		AccessTokenSecret:            "access-secret",
		RefreshTokenSecret:           "refresh-secret",
		AccessTokenValidityDuration:  3 * time.Hour,
		RefreshTokenValidityDuration: 7 * 24 * time.Hour,
		PasswordHashCost:             cryptox.MinCost,
		TokenHashCost:                cryptox.MinCost,
	}
}

type testEnv struct {
	svc   *UserService
	repos *repomanager.MemoryRepositoryManager
	mock  sqlmock.Sqlmock
	db    *sql.DB
	clock *timex.FixedClock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repos := repomanager.NewMemoryRepositoryManager()
	clock := timex.NewFixedClock(epoch)
	svc := NewUserService(db, repos, testConfig(), WithClock(clock))

	return &testEnv{svc: svc, repos: repos, mock: mock, db: db, clock: clock}
}

func registerInput(email string) RegisterInput {
	return RegisterInput{Email: email, FirstName: "Ann", LastName: "Lee", Password: testPwd, ConfirmPassword: testPwd}
}

// register expects one committed transaction.
func (e *testEnv) register(t *testing.T, email string) *AuthResult {
	t.Helper()
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
	res, err := e.svc.Register(context.Background(), registerInput(email), testIP, testUA)
	require.NoError(t, err)
	return res
}
