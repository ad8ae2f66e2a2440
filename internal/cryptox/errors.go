package cryptox

import "errors"

var (
	// ErrInvalidPassword means the key pair derived from the entered password
	// does not match the public key on record. It is terminal for the attempt.
	ErrInvalidPassword = errors.New("invalid password")

	// ErrDecryption means authentication of sealed data failed: the key is
	// wrong or the ciphertext, tag, nonce or bound identity was altered.
	ErrDecryption = errors.New("decryption failed")

	ErrInvalidKeyLength = errors.New("invalid key length")
)
