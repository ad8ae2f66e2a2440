// Package ciphers stores the encrypted vault records on the server. Every
// method is scoped to one user.
package ciphers

import (
	"context"

	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

type Repository interface {
	// Insert fails with common.ErrorAlreadyExists when the id is taken.
	Insert(ctx context.Context, c *models.Cipher) error
	// Update returns common.ErrorNotFound unless the user owns the record.
	Update(ctx context.Context, c *models.Cipher) error
	// Delete returns common.ErrorNotFound unless the user owns the record.
	Delete(ctx context.Context, userID, id string) error
	All(ctx context.Context, userID string) ([]*models.Cipher, error)
	// Since returns the records written at or after since.
	Since(ctx context.Context, userID string, since int64) ([]*models.Cipher, error)
	LiveIDs(ctx context.Context, userID string) ([]string, error)
}
