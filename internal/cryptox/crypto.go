package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
)

const (
	// NonceSize is the AES-GCM nonce length.
	NonceSize = 12
	// TagSize is the AES-GCM authentication tag length.
	TagSize = 16
)

// Sealed is the output of EncryptEntry. The GCM tag is kept apart from the
// ciphertext body so it can be stored and transmitted as its own field.
type Sealed struct {
	Ciphertext []byte
	Tag        []byte
	Nonce      []byte
}

// EncryptEntry serializes the given entry to JSON and encrypts it using AES-GCM.
//
// The key must be a valid AES key length (16, 24, or 32 bytes for AES-128,
// AES-192, or AES-256 respectively). A new random 12-byte nonce is read from
// crypto/rand on every call; nonces are never derived from the entry. The aad
// bytes are authenticated but not encrypted and must be supplied again to
// DecryptEntry.
//
// Parameters:
//   - entry: any Go value that can be marshaled to JSON.
//   - key: the AES encryption key.
//   - aad: additional authenticated data, e.g. the record identity.
//
// Returns:
//   - sealed: ciphertext, detached tag and nonce.
//   - err: non-nil if serialization or encryption fails.
//
// Example:
//
//	type User struct {
//	    ID   int    `json:"id"`
//	    Name string `json:"name"`
//	}
//
//	key := make([]byte, 32) // 256-bit key
//	if _, err := rand.Read(key); err != nil {
//	    log.Fatal(err)
//	}
//
//	sealed, err := EncryptEntry(User{ID: 1, Name: "Alice"}, key, []byte("user/1"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Encrypted data: %x\n", sealed.Ciphertext)
func EncryptEntry(entry any, key, aad []byte) (*Sealed, error) {

	// serializing JSON
	plaintext, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("serialize entry: %w", err)
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	// nonce
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	// encrypting
	out := aesgcm.Seal(nil, nonce, plaintext, aad)
	split := len(out) - TagSize

	return &Sealed{Ciphertext: out[:split:split], Tag: out[split:], Nonce: nonce}, nil
}

// DecryptEntry authenticates and decrypts s using AES-GCM and unmarshals
// the resulting JSON into the provided value v.
//
// The key and aad must be the same as the ones used by EncryptEntry.
//
// Parameters:
//   - s: the sealed data produced by EncryptEntry.
//   - key: the AES encryption key (must be 16, 24, or 32 bytes).
//   - aad: the additional authenticated data bound at encryption time.
//   - v: a pointer to the Go value into which the decrypted JSON will be unmarshaled.
//
// Returns:
//   - ErrDecryption if authentication fails for any reason (wrong key,
//     modified ciphertext, tag, nonce or aad).
//   - a wrapped JSON error if the plaintext authenticates but does not parse.
//
// Example:
//
//	var user User
//	if err := DecryptEntry(sealed, key, []byte("user/1"), &user); err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Printf("Decrypted user: %+v\n", user)
func DecryptEntry(s *Sealed, key, aad []byte, v any) error {
	if s == nil || len(s.Nonce) != NonceSize || len(s.Tag) != TagSize {
		return ErrDecryption
	}

	aesgcm, err := newGCM(key)
	if err != nil {
		return err
	}

	buf := make([]byte, 0, len(s.Ciphertext)+len(s.Tag))
	buf = append(buf, s.Ciphertext...)
	buf = append(buf, s.Tag...)

	plaintext, err := aesgcm.Open(nil, s.Nonce, buf, aad)
	if err != nil {
		return ErrDecryption
	}

	if err := json.Unmarshal(plaintext, v); err != nil {
		return fmt.Errorf("deserialize entry: %w", err)
	}
	return nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyLength, err)
	}
	return cipher.NewGCM(block)
}
