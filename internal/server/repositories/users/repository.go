// Package users declares and implements the server-side storage of accounts.
package users

import (
	"context"

	"github.com/dmitrijs2005/gophvault/internal/server/models"
)

type Repository interface {
	// Create stores a new account. A taken email yields common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) error
	// GetByEmail returns common.ErrorNotFound for unknown emails.
	GetByEmail(ctx context.Context, email string) (*models.User, error)
}
