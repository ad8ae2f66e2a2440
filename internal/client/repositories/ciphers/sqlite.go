package ciphers

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.EncryptedVaultRecord, error) {
	query := `SELECT id, owner_id, ciphertext, tag, nonce, updated_at FROM ciphers WHERE id = ?`

	e := &models.EncryptedVaultRecord{}
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&e.ID, &e.OwnerID, &e.Ciphertext, &e.Tag, &e.Nonce, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cipher[%s]: %w", id, err)
	}
	return e, nil
}

func (r *SQLiteRepository) GetAll(ctx context.Context, ownerID string) ([]*models.EncryptedVaultRecord, error) {
	query := `SELECT id, owner_id, ciphertext, tag, nonce, updated_at FROM ciphers WHERE owner_id = ? ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select ciphers: %w", err)
	}
	defer rows.Close()

	result := make([]*models.EncryptedVaultRecord, 0)
	for rows.Next() {
		e := &models.EncryptedVaultRecord{}
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Ciphertext, &e.Tag, &e.Nonce, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan cipher row: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cipher rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) GetAllIDs(ctx context.Context, ownerID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id FROM ciphers WHERE owner_id = ? ORDER BY id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to select cipher ids: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan cipher id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cipher ids: %w", err)
	}
	return ids, nil
}

// Upsert overwrites any local copy unconditionally.
func (r *SQLiteRepository) Upsert(ctx context.Context, e *models.EncryptedVaultRecord) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO ciphers (id, owner_id, ciphertext, tag, nonce, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			owner_id   = excluded.owner_id,
			ciphertext = excluded.ciphertext,
			tag        = excluded.tag,
			nonce      = excluded.nonce,
			updated_at = excluded.updated_at
	`, e.ID, e.OwnerID, e.Ciphertext, e.Tag, e.Nonce, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert cipher[%s]: %w", e.ID, err)
	}
	return nil
}

// Delete is idempotent.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM ciphers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete cipher[%s]: %w", id, err)
	}
	return nil
}

func (r *SQLiteRepository) DeleteAll(ctx context.Context, ownerID string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM ciphers WHERE owner_id = ?`, ownerID); err != nil {
		return fmt.Errorf("failed to delete ciphers of %s: %w", ownerID, err)
	}
	return nil
}
