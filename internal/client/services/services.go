// Package services contains the application services of the GophVault
// client: authentication, the decrypted vault view with write-through
// edits, and incremental sync against the remote store.
package services

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/gophvault/internal/client/client"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/client/session"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
)

// Session is the part of *session.Session the services depend on.
type Session interface {
	State() session.State
	UserID() string
	AccessToken() (string, error)
	WithVaultKey(fn func(key []byte) error) error
	MarkStale(ctx context.Context) error
	Refresh(ctx context.Context) error
	Unlock(ctx context.Context, password []byte) error
	UnlockWithSealer(ctx context.Context, u session.Unsealer) error
	Establish(creds *models.Credentials, kp *cryptox.KeyPair) error
	Lock()
}

// Sealer seals the private key for password-less unlock.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Unseal(blob []byte) ([]byte, error)
	Forget() error
}

// callWithToken runs fn with a valid access token. A Stale session is
// refreshed first; if fn reports an expired token the session is marked
// stale, refreshed once and fn retried once.
func callWithToken[T any](ctx context.Context, sess Session, fn func(token string) (T, error)) (T, error) {
	var zero T

	if sess.State() == session.Stale {
		if err := sess.Refresh(ctx); err != nil {
			return zero, err
		}
	}

	token, err := sess.AccessToken()
	if err != nil {
		return zero, err
	}

	res, err := fn(token)
	if !errors.Is(err, client.ErrTokenExpired) {
		return res, err
	}

	if err := sess.MarkStale(ctx); err != nil {
		return zero, err
	}
	if err := sess.Refresh(ctx); err != nil {
		return zero, err
	}
	if token, err = sess.AccessToken(); err != nil {
		return zero, err
	}
	return fn(token)
}
