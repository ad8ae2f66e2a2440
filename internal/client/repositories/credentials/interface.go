// Package credentials persists the single signed-in account of the client:
// derivation parameters, public key, sealed private key, tokens and the
// sync cursor.
package credentials

import (
	"context"

	"github.com/dmitrijs2005/gophvault/internal/client/models"
)

type Repository interface {
	Get(ctx context.Context) (*models.Credentials, error)
	Save(ctx context.Context, c *models.Credentials) error
	UpdateTokens(ctx context.Context, accessToken, refreshToken string) error
	SetRequireRefresh(ctx context.Context, v bool) error
	SetLastSync(ctx context.Context, ts int64) error
	SetBiometric(ctx context.Context, blob []byte) error
	ClearTokens(ctx context.Context) error
	Clear(ctx context.Context) error
}
