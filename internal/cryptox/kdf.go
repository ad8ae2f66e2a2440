// Package cryptox holds the client-side cryptography of GophVault: password
// based key derivation, X25519 key agreement, authenticated encryption of
// vault entries and sealing of private keys.
package cryptox

import "golang.org/x/crypto/argon2"

// Argon2id defaults applied to any zero-valued parameter.
const (
	DefaultMemory      uint32 = 64 * 1024 // KiB
	DefaultIterations  uint32 = 3
	DefaultParallelism uint8  = 4

	// KeyLength is the size of every derived secret and symmetric key.
	KeyLength = 32
)

// Argon2Params are the per-account derivation costs. They are not secret
// and are stored next to the account's public key.
type Argon2Params struct {
	Memory      uint32 `json:"memory"`
	Iterations  uint32 `json:"iterations"`
	Parallelism uint8  `json:"parallelism"`
}

// DefaultArgon2Params returns the documented default costs.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      DefaultMemory,
		Iterations:  DefaultIterations,
		Parallelism: DefaultParallelism,
	}
}

// WithDefaults returns p with every zero field replaced by its default.
func (p Argon2Params) WithDefaults() Argon2Params {
	d := DefaultArgon2Params()
	if p.Memory == 0 {
		p.Memory = d.Memory
	}
	if p.Iterations == 0 {
		p.Iterations = d.Iterations
	}
	if p.Parallelism == 0 {
		p.Parallelism = d.Parallelism
	}
	return p
}

// DeriveBaseSecret runs Argon2id over the password, salted with the account
// email, and returns a KeyLength-byte base secret.
//
// The result is a pure function of its inputs: the same password, email and
// parameters always produce the same bytes. Missing parameters fall back to
// the defaults (see WithDefaults).
//
// The caller owns the returned slice and should wipe it with
// common.WipeByteArray once the key pair has been derived.
func DeriveBaseSecret(password []byte, email string, params Argon2Params) []byte {
	p := params.WithDefaults()
	return argon2.IDKey(password, []byte(email), p.Iterations, p.Memory, p.Parallelism, KeyLength)
}
