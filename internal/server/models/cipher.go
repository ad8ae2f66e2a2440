// Package models defines server-side data models persisted in the database.
package models

// Cipher is an encrypted vault record as stored by the server. Only the
// owner can decrypt it.
type Cipher struct {
	ID         string
	UserID     string
	Ciphertext []byte
	Tag        []byte
	Nonce      []byte
	// UpdatedAt is the server clock, in unix seconds, of the last write.
	UpdatedAt int64
}
