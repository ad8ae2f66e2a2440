package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/ciphers"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/users"
)

// RepositoryManager hands out repositories bound to a *sql.DB or *sql.Tx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Ciphers(db dbx.DBTX) ciphers.Repository
}
