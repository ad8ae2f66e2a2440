package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/nacl/secretbox"
)

const secretboxNonceSize = 24

// Seal wraps plaintext with NaCl secretbox under a 32-byte key.
// The output is nonce || box.
func Seal(plaintext, key []byte) ([]byte, error) {
	var k [KeyLength]byte
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	copy(k[:], key)
	defer common.WipeByteArray(k[:])

	var nonce [secretboxNonceSize]byte
	if _, err := io.ReadFull(rand.Reader, nonce[:]); err != nil {
		return nil, err
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &k), nil
}

// Open reverses Seal. Any authentication failure yields ErrDecryption.
func Open(blob, key []byte) ([]byte, error) {
	var k [KeyLength]byte
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	if len(blob) < secretboxNonceSize+secretbox.Overhead {
		return nil, ErrDecryption
	}
	copy(k[:], key)
	defer common.WipeByteArray(k[:])

	var nonce [secretboxNonceSize]byte
	copy(nonce[:], blob[:secretboxNonceSize])

	out, ok := secretbox.Open(nil, blob[secretboxNonceSize:], &nonce, &k)
	if !ok {
		return nil, ErrDecryption
	}
	return out, nil
}

// SealPrivateKey seals the private key under a key expanded from the base
// secret, so the stored form can only be opened with the master password.
func SealPrivateKey(privateKey, baseSecret []byte) ([]byte, error) {
	k, err := sealingKey(baseSecret)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(k)
	return Seal(privateKey, k)
}

// OpenPrivateKey opens a blob produced by SealPrivateKey.
func OpenPrivateKey(blob, baseSecret []byte) ([]byte, error) {
	k, err := sealingKey(baseSecret)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(k)
	return Open(blob, k)
}

func sealingKey(baseSecret []byte) ([]byte, error) {
	k := make([]byte, KeyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, baseSecret, nil, []byte(labelKeySeal)), k); err != nil {
		return nil, err
	}
	return k, nil
}
