// Package ciphers is the local cache of encrypted vault records. Only
// EncryptedVaultRecord values are stored; plaintext never reaches the disk.
package ciphers

import (
	"context"

	"github.com/dmitrijs2005/gophvault/internal/client/models"
)

type Repository interface {
	Get(ctx context.Context, id string) (*models.EncryptedVaultRecord, error)
	GetAll(ctx context.Context, ownerID string) ([]*models.EncryptedVaultRecord, error)
	GetAllIDs(ctx context.Context, ownerID string) ([]string, error)
	Upsert(ctx context.Context, r *models.EncryptedVaultRecord) error
	Delete(ctx context.Context, id string) error
	DeleteAll(ctx context.Context, ownerID string) error
}
