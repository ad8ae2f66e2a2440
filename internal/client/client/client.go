package client

import (
	"context"

	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// PreLoginResult is what the server discloses before authentication.
type PreLoginResult struct {
	Params          cryptox.Argon2Params
	ServerPublicKey []byte
}

// RegisterInput is the registration payload. It never contains the password.
type RegisterInput struct {
	Email        string
	PublicKey    []byte
	Params       cryptox.Argon2Params
	Verifier     []byte
	PasswordHint string
}

type LoginResult struct {
	UserID    string
	PublicKey []byte
	Tokens    TokenPair
}

// Snapshot is a full pull of the account's records.
type Snapshot struct {
	Records    []*models.EncryptedVaultRecord
	ServerTime int64
}

// Delta is the answer to SyncSince: every live id and the records changed
// at or after the cursor.
type Delta struct {
	LiveIDs    []string
	Changed    []*models.EncryptedVaultRecord
	ServerTime int64
}

// Client is the remote record store boundary.
type Client interface {
	Close() error
	Ping(ctx context.Context) error
	PreLogin(ctx context.Context, email string) (*PreLoginResult, error)
	Register(ctx context.Context, in RegisterInput) (string, error)
	Login(ctx context.Context, email string, verifier []byte) (*LoginResult, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	AllRecords(ctx context.Context, accessToken string) (*Snapshot, error)
	SyncSince(ctx context.Context, accessToken string, since int64) (*Delta, error)
	InsertRecord(ctx context.Context, accessToken string, r *models.EncryptedVaultRecord) (int64, error)
	UpdateRecord(ctx context.Context, accessToken string, r *models.EncryptedVaultRecord) (int64, error)
	DeleteRecord(ctx context.Context, accessToken string, id string) error
}
