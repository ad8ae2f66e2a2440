package models

import "time"

// User is a registered account. The server keeps only public material: the
// X25519 public key and the parameters the client needs to re-derive it.
type User struct {
	ID           string
	Email        string
	PublicKey    []byte
	Memory       uint32
	Iterations   uint32
	Parallelism  uint8
	PasswordHint string
	CreatedAt    time.Time
}
