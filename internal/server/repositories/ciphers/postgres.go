package ciphers

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/pgerr"
)

// PostgresRepository implements cipher storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Insert(ctx context.Context, c *models.Cipher) error {
	query := `
		INSERT INTO ciphers (id, user_id, ciphertext, tag, nonce, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query, c.ID, c.UserID, c.Ciphertext, c.Tag, c.Nonce, c.UpdatedAt)
	if err != nil {
		if pgerr.IsUniqueViolation(err) {
			return common.ErrorAlreadyExists
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, c *models.Cipher) error {
	query := `
		UPDATE ciphers
		SET ciphertext = $3, tag = $4, nonce = $5, updated_at = $6
		WHERE id = $1 AND user_id = $2
	`
	return r.execOne(ctx, query, c.ID, c.UserID, c.Ciphertext, c.Tag, c.Nonce, c.UpdatedAt)
}

func (r *PostgresRepository) Delete(ctx context.Context, userID, id string) error {
	query := `
		DELETE FROM ciphers
		WHERE id = $1 AND user_id = $2
	`
	return r.execOne(ctx, query, id, userID)
}

func (r *PostgresRepository) All(ctx context.Context, userID string) ([]*models.Cipher, error) {
	query := `
		SELECT id, user_id, ciphertext, tag, nonce, updated_at
		FROM ciphers
		WHERE user_id = $1
		ORDER BY id
	`
	return r.query(ctx, query, userID)
}

func (r *PostgresRepository) Since(ctx context.Context, userID string, since int64) ([]*models.Cipher, error) {
	query := `
		SELECT id, user_id, ciphertext, tag, nonce, updated_at
		FROM ciphers
		WHERE user_id = $1 AND updated_at >= $2
		ORDER BY id
	`
	return r.query(ctx, query, userID, since)
}

func (r *PostgresRepository) LiveIDs(ctx context.Context, userID string) ([]string, error) {
	query := `
		SELECT id
		FROM ciphers
		WHERE user_id = $1
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return ids, nil
}

func (r *PostgresRepository) query(ctx context.Context, query string, args ...any) ([]*models.Cipher, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]*models.Cipher, 0)
	for rows.Next() {
		c := &models.Cipher{}
		if err := rows.Scan(&c.ID, &c.UserID, &c.Ciphertext, &c.Tag, &c.Nonce, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan error: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}
	return out, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}
