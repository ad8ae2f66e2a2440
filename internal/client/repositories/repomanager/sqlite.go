// Package repomanager opens the client's local SQLite database, applies the
// embedded goose migrations and vends repositories bound to a DBTX, so the
// same repositories work on *sql.DB and inside transactions.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/client/migrations"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/ciphers"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/credentials"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

type RepositoryManager interface {
	Credentials(db dbx.DBTX) credentials.Repository
	Ciphers(db dbx.DBTX) ciphers.Repository
}

// SQLiteRepositoryManager vends SQLite-backed repositories.
type SQLiteRepositoryManager struct{}

func NewSQLiteRepositoryManager() *SQLiteRepositoryManager {
	return &SQLiteRepositoryManager{}
}

func (m *SQLiteRepositoryManager) Credentials(db dbx.DBTX) credentials.Repository {
	return credentials.NewSQLiteRepository(db)
}

func (m *SQLiteRepositoryManager) Ciphers(db dbx.DBTX) ciphers.Repository {
	return ciphers.NewSQLiteRepository(db)
}

// RunMigrations applies the embedded migrations; it is idempotent.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// OpenDatabase opens (creating if needed) the SQLite file at dsn and
// migrates it.
func OpenDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	// a single writer avoids SQLITE_BUSY between the session and sync paths
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate local database: %w", err)
	}
	return db, nil
}
