package cryptox

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

// Context labels that separate the keys produced from one X25519 output.
const (
	LabelVaultKey     = "gophvault/vault-key/v1"
	LabelAuthVerifier = "gophvault/auth-verifier/v1"
	labelKeySeal      = "gophvault/private-key-seal/v1"
)

// KeyPair is an X25519 key pair. Private must be wiped with Destroy.
type KeyPair struct {
	Private []byte
	Public  []byte
}

// Destroy zeroes the private key.
func (k *KeyPair) Destroy() {
	if k == nil {
		return
	}
	common.WipeByteArray(k.Private)
	k.Private = nil
}

// KeyPairFromSecret deterministically turns a base secret into an X25519
// key pair. The secret is copied and used as the private scalar.
func KeyPairFromSecret(secret []byte) (*KeyPair, error) {
	if len(secret) != curve25519.ScalarSize {
		return nil, ErrInvalidKeyLength
	}
	priv := bytes.Clone(secret)
	pub, err := PublicKeyFromPrivate(priv)
	if err != nil {
		common.WipeByteArray(priv)
		return nil, err
	}
	return &KeyPair{Private: priv, Public: pub}, nil
}

// PublicKeyFromPrivate computes X25519(priv, basepoint).
func PublicKeyFromPrivate(priv []byte) ([]byte, error) {
	if len(priv) != curve25519.ScalarSize {
		return nil, ErrInvalidKeyLength
	}
	return curve25519.X25519(priv, curve25519.Basepoint)
}

// SharedSecret performs X25519 between myPrivate and theirPublic and expands
// the result with HKDF-SHA256 under label. Both sides of the exchange obtain
// the same key for the same label.
//
// Low-order public keys are rejected by curve25519.X25519.
func SharedSecret(myPrivate, theirPublic []byte, label string) ([]byte, error) {
	if len(myPrivate) != curve25519.ScalarSize || len(theirPublic) != curve25519.PointSize {
		return nil, ErrInvalidKeyLength
	}
	raw, err := curve25519.X25519(myPrivate, theirPublic)
	if err != nil {
		return nil, fmt.Errorf("key agreement: %w", err)
	}
	defer common.WipeByteArray(raw)

	key := make([]byte, KeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, raw, nil, []byte(label)), key); err != nil {
		return nil, fmt.Errorf("key expansion: %w", err)
	}
	return key, nil
}

// VaultKey returns the symmetric key protecting vault records. It is the
// account's agreement with itself, so only the password holder can compute it.
func VaultKey(kp *KeyPair) ([]byte, error) {
	return SharedSecret(kp.Private, kp.Public, LabelVaultKey)
}

// AuthVerifier returns the value presented to the server at login. The
// server recomputes it from its own private key and the account public key.
func AuthVerifier(myPrivate, serverPublic []byte) ([]byte, error) {
	return SharedSecret(myPrivate, serverPublic, LabelAuthVerifier)
}

// VerifyPublicKey compares a freshly derived public key with the one on
// record and returns ErrInvalidPassword on mismatch.
func VerifyPublicKey(derived, stored []byte) error {
	if len(stored) == 0 || subtle.ConstantTimeCompare(derived, stored) != 1 {
		return ErrInvalidPassword
	}
	return nil
}
