package models

import "github.com/dmitrijs2005/gophvault/internal/cryptox"

// Credentials is the persisted account state of the signed-in user.
// Derivation parameters and the public key are stored in plaintext; the
// private key only ever in sealed form.
type Credentials struct {
	UserID string
	Email  string
	Params cryptox.Argon2Params

	PublicKey           []byte
	EncryptedPrivateKey []byte

	AccessToken    string
	RefreshToken   string
	RequireRefresh bool

	// LastSync is the sync cursor in epoch seconds; nil means never synced.
	LastSync *int64

	// BiometricPrivateKey is the private key sealed by the platform sealer.
	BiometricPrivateKey []byte
}
