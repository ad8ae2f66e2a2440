// Package sealer keeps the client's private key sealed under a device key
// held by the OS keyring, so the vault can be unlocked without the password.
package sealer

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/zalando/go-keyring"
)

const wrappingKeyAccount = "device-wrapping-key"

var ErrNotEnrolled = errors.New("no device key in the keyring")

// KeyringSealer seals blobs with a random 32-byte device key stored in the
// OS keyring under service.
type KeyringSealer struct {
	service string
}

func NewKeyringSealer(service string) *KeyringSealer {
	return &KeyringSealer{service: service}
}

// Seal encrypts plaintext with the device key, creating the key on first use.
func (k *KeyringSealer) Seal(plaintext []byte) ([]byte, error) {
	key, err := k.deviceKey()
	if errors.Is(err, ErrNotEnrolled) {
		key = common.GenerateRandByteArray(cryptox.KeyLength)
		if err := keyring.Set(k.service, wrappingKeyAccount, hex.EncodeToString(key)); err != nil {
			return nil, fmt.Errorf("store device key: %w", err)
		}
	} else if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	return cryptox.Seal(plaintext, key)
}

// Unseal reverses Seal. It fails with ErrNotEnrolled when the device key is
// gone, e.g. after Forget.
func (k *KeyringSealer) Unseal(blob []byte) ([]byte, error) {
	key, err := k.deviceKey()
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	return cryptox.Open(blob, key)
}

// Forget removes the device key. Blobs sealed earlier become unreadable.
func (k *KeyringSealer) Forget() error {
	err := keyring.Delete(k.service, wrappingKeyAccount)
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("delete device key: %w", err)
	}
	return nil
}

func (k *KeyringSealer) deviceKey() ([]byte, error) {
	s, err := keyring.Get(k.service, wrappingKeyAccount)
	if errors.Is(err, keyring.ErrNotFound) {
		return nil, ErrNotEnrolled
	}
	if err != nil {
		return nil, fmt.Errorf("read device key: %w", err)
	}
	key, err := hex.DecodeString(s)
	if err != nil || len(key) != cryptox.KeyLength {
		return nil, fmt.Errorf("device key is corrupted")
	}
	return key, nil
}
