package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/tokenkeeper/internal/dbx"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/tokenkeeper/internal/server/repositories/users"
)

// MemoryRepositoryManager hands out the same in-memory repositories for
// every DBTX. Transactions are not isolated: writes made before a rollback
// stay visible.
type MemoryRepositoryManager struct {
	UsersRepo  *users.MemoryRepository
	TokensRepo *refreshtokens.MemoryRepository
}

func NewMemoryRepositoryManager() *MemoryRepositoryManager {
	return &MemoryRepositoryManager{
		UsersRepo:  users.NewMemoryRepository(),
		TokensRepo: refreshtokens.NewMemoryRepository(),
	}
}

func (m *MemoryRepositoryManager) Users(dbx.DBTX) users.Repository { return m.UsersRepo }

func (m *MemoryRepositoryManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return m.TokensRepo
}

func (m *MemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error { return nil }
