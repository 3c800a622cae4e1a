package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/tokenkeeper/internal/common"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

const (
	insertQ     = `(?s)^INSERT\s+INTO\s+refresh_tokens\b.*VALUES\s*\(\$1,\s*\$2,\s*\$3,\s*\$4,\s*\$5,\s*\$6\)\s*RETURNING\s+created_at\s*$`
	findQ       = `(?s)^SELECT\s+id,\s*user_id,\s*token_hash,.*FROM\s+refresh_tokens\s+WHERE\s+id\s*=\s*\$1\s*$`
	deactivateQ = `(?s)^UPDATE\s+refresh_tokens\s+SET\s+is_active\s*=\s*false,\s*revoked_at\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s+AND\s+is_active\s*$`
	touchQ      = `(?s)^UPDATE\s+refresh_tokens\s+SET\s+last_used\s*=\s*\$2\s+WHERE\s+id\s*=\s*\$1\s*$`
	bulkQ       = `(?s)^UPDATE\s+refresh_tokens\s+SET\s+is_active\s*=\s*false,\s*revoked_at\s*=\s*\$1\s+WHERE\s+expires_at\s*<\s*\$1\s+AND\s+is_active\s*$`
)

var tokenCols = []string{"id", "user_id", "token_hash", "ip_fragment", "user_agent", "expires_at", "is_active", "revoked_at", "last_used", "created_at"}

func TestInsert_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Now().Add(time.Hour)
	created := time.Now()
	mock.ExpectQuery(insertQ).
		WithArgs("t1", "u1", "hash", "203.0.113.0", "UA-1", exp).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(created))

	tok := &models.RefreshToken{ID: "t1", UserID: "u1", TokenHash: "hash", IPFragment: "203.0.113.0", UserAgent: "UA-1", ExpiresAt: exp}
	if err := repo.Insert(context.Background(), tok); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tok.IsActive || !tok.CreatedAt.Equal(created) {
		t.Fatalf("row not filled in: %+v", tok)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsert_Errors(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(insertQ).WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectQuery(insertQ).WillReturnError(errors.New("db down"))

	err := repo.Insert(context.Background(), &models.RefreshToken{ID: "t1"})
	if !errors.Is(err, common.ErrorAlreadyExists) {
		t.Fatalf("want common.ErrorAlreadyExists, got %v", err)
	}
	err = repo.Insert(context.Background(), &models.RefreshToken{ID: "t2"})
	if err == nil || !regexp.MustCompile(`db error: .*db down`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestFindByTokenID_Found(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	exp := time.Now().Add(time.Hour)
	revoked := time.Now()
	mock.ExpectQuery(findQ).
		WithArgs("t1").
		WillReturnRows(sqlmock.NewRows(tokenCols).
			AddRow("t1", "u1", "hash", "203.0.113.0", "UA-1", exp, false, revoked, nil, revoked))

	got, err := repo.FindByTokenID(context.Background(), "t1")
	if err != nil {
		t.Fatalf("FindByTokenID error: %v", err)
	}
	if got.UserID != "u1" || got.IsActive || got.RevokedAt == nil || !got.RevokedAt.Equal(revoked) {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.LastUsed != nil {
		t.Fatalf("last_used should be nil, got %v", got.LastUsed)
	}
}

func TestFindByTokenID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(findQ).WithArgs("nope").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(findQ).WithArgs("boom").WillReturnError(errors.New("db err"))

	if _, err := repo.FindByTokenID(context.Background(), "nope"); !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("want common.ErrorNotFound, got %v", err)
	}
	_, err := repo.FindByTokenID(context.Background(), "boom")
	if err == nil || !regexp.MustCompile(`db error: .*db err`).MatchString(err.Error()) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestUpdateActiveFlag(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Now()
	mock.ExpectExec(deactivateQ).WithArgs("t1", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deactivateQ).WithArgs("t1", at).WillReturnResult(sqlmock.NewResult(0, 0))

	changed, err := repo.UpdateActiveFlag(context.Background(), "t1", false, at)
	if err != nil || !changed {
		t.Fatalf("first deactivate: changed=%v err=%v", changed, err)
	}
	changed, err = repo.UpdateActiveFlag(context.Background(), "t1", false, at)
	if err != nil || changed {
		t.Fatalf("second deactivate must be a no-op: changed=%v err=%v", changed, err)
	}

	if _, err := repo.UpdateActiveFlag(context.Background(), "t1", true, at); !errors.Is(err, common.ErrInvalidTransition) {
		t.Fatalf("want common.ErrInvalidTransition, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestTouch(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	at := time.Now()
	mock.ExpectExec(touchQ).WithArgs("t1", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(touchQ).WithArgs("t1", at).WillReturnError(errors.New("db err"))

	if err := repo.Touch(context.Background(), "t1", at); err != nil {
		t.Fatalf("Touch error: %v", err)
	}
	if err := repo.Touch(context.Background(), "t1", at); err == nil {
		t.Fatalf("expected error")
	}
}

func TestBulkExpire(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectExec(bulkQ).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec(bulkQ).WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(bulkQ).WithArgs(now).WillReturnError(errors.New("db err"))

	n, err := repo.BulkExpire(context.Background(), now)
	if err != nil || n != 3 {
		t.Fatalf("first sweep: n=%d err=%v", n, err)
	}
	n, err = repo.BulkExpire(context.Background(), now)
	if err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
	if _, err := repo.BulkExpire(context.Background(), now); err == nil {
		t.Fatalf("expected error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
