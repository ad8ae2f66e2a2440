package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
)

// SQLiteRepository keeps the credentials in a single row with id = 1.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Get returns common.ErrorNotFound when nobody has signed in yet.
func (r *SQLiteRepository) Get(ctx context.Context) (*models.Credentials, error) {
	query := `
		SELECT user_id, email, memory, iterations, parallelism, public_key, encrypted_private_key,
		       access_token, refresh_token, require_refresh, last_sync, biometric_private_key
		FROM credentials WHERE id = 1
	`
	var (
		c                            models.Credentials
		memory, iterations, parallel int64
		requireRefresh               int64
		lastSync                     sql.NullInt64
	)
	err := r.db.QueryRowContext(ctx, query).Scan(
		&c.UserID, &c.Email, &memory, &iterations, &parallel,
		&c.PublicKey, &c.EncryptedPrivateKey,
		&c.AccessToken, &c.RefreshToken, &requireRefresh, &lastSync, &c.BiometricPrivateKey,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credentials: %w", err)
	}

	c.Params.Memory = uint32(memory)
	c.Params.Iterations = uint32(iterations)
	c.Params.Parallelism = uint8(parallel)
	c.RequireRefresh = requireRefresh != 0
	if lastSync.Valid {
		ts := lastSync.Int64
		c.LastSync = &ts
	}
	return &c, nil
}

// Save replaces the stored credentials. The user id, the public key and the
// sealed private key are required.
func (r *SQLiteRepository) Save(ctx context.Context, c *models.Credentials) error {
	if err := validate(c); err != nil {
		return err
	}
	var lastSync sql.NullInt64
	if c.LastSync != nil {
		lastSync = sql.NullInt64{Int64: *c.LastSync, Valid: true}
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO credentials (id, user_id, email, memory, iterations, parallelism, public_key,
		                         encrypted_private_key, access_token, refresh_token, require_refresh,
		                         last_sync, biometric_private_key)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			user_id               = excluded.user_id,
			email                 = excluded.email,
			memory                = excluded.memory,
			iterations            = excluded.iterations,
			parallelism           = excluded.parallelism,
			public_key            = excluded.public_key,
			encrypted_private_key = excluded.encrypted_private_key,
			access_token          = excluded.access_token,
			refresh_token         = excluded.refresh_token,
			require_refresh       = excluded.require_refresh,
			last_sync             = excluded.last_sync,
			biometric_private_key = excluded.biometric_private_key
	`, c.UserID, c.Email, c.Params.Memory, c.Params.Iterations, c.Params.Parallelism,
		c.PublicKey, c.EncryptedPrivateKey, c.AccessToken, c.RefreshToken,
		boolToInt(c.RequireRefresh), lastSync, nullableBlob(c.BiometricPrivateKey))
	if err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	return nil
}

// UpdateTokens stores a freshly rotated pair and clears require_refresh.
func (r *SQLiteRepository) UpdateTokens(ctx context.Context, accessToken, refreshToken string) error {
	return r.update(ctx, "tokens",
		`UPDATE credentials SET access_token = ?, refresh_token = ?, require_refresh = 0 WHERE id = 1`,
		accessToken, refreshToken)
}

func (r *SQLiteRepository) SetRequireRefresh(ctx context.Context, v bool) error {
	return r.update(ctx, "require_refresh",
		`UPDATE credentials SET require_refresh = ? WHERE id = 1`, boolToInt(v))
}

func (r *SQLiteRepository) SetLastSync(ctx context.Context, ts int64) error {
	return r.update(ctx, "last_sync", `UPDATE credentials SET last_sync = ? WHERE id = 1`, ts)
}

func (r *SQLiteRepository) SetBiometric(ctx context.Context, blob []byte) error {
	return r.update(ctx, "biometric_private_key",
		`UPDATE credentials SET biometric_private_key = ? WHERE id = 1`, nullableBlob(blob))
}

// ClearTokens drops the token pair and the platform-sealed key. The account
// row stays so the user can sign in again with the password.
func (r *SQLiteRepository) ClearTokens(ctx context.Context) error {
	return r.update(ctx, "tokens", `
		UPDATE credentials
		SET access_token = '', refresh_token = '', require_refresh = 1, biometric_private_key = NULL
		WHERE id = 1`)
}

func (r *SQLiteRepository) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM credentials`); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) update(ctx context.Context, what, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update credentials[%s]: %w", what, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func validate(c *models.Credentials) error {
	switch {
	case c == nil:
		return fmt.Errorf("%w: credentials are nil", common.ErrorValidation)
	case c.UserID == "":
		return fmt.Errorf("%w: user id is required", common.ErrorValidation)
	case len(c.PublicKey) == 0:
		return fmt.Errorf("%w: public key is required", common.ErrorValidation)
	case len(c.EncryptedPrivateKey) == 0:
		return fmt.Errorf("%w: encrypted private key is required", common.ErrorValidation)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// nullableBlob stores empty blobs as NULL so they read back as nil.
func nullableBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
