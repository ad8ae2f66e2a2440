package models

import (
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
)

// VaultRecord is a decrypted vault item. It exists only in memory.
type VaultRecord struct {
	// ID is assigned once on creation and never changes.
	ID      string
	OwnerID string
	Envelope
}

// EncryptedVaultRecord is the only form of a record that is persisted locally
// or sent to the server.
type EncryptedVaultRecord struct {
	ID         string
	OwnerID    string
	Ciphertext []byte
	Tag        []byte
	Nonce      []byte
	// UpdatedAt is the server modification time in epoch seconds.
	UpdatedAt int64
}

// recordAAD binds the ciphertext to the record identity so a blob cannot be
// replayed under another id or owner.
func recordAAD(id, ownerID string) []byte {
	aad := make([]byte, 0, len(id)+len(ownerID)+1)
	aad = append(aad, id...)
	aad = append(aad, 0)
	aad = append(aad, ownerID...)
	return aad
}

// EncryptRecord seals the record envelope with the vault key. Each call uses
// a fresh random nonce.
func EncryptRecord(r *VaultRecord, key []byte) (*EncryptedVaultRecord, error) {
	sealed, err := cryptox.EncryptEntry(r.Envelope, key, recordAAD(r.ID, r.OwnerID))
	if err != nil {
		return nil, err
	}
	return &EncryptedVaultRecord{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Ciphertext: sealed.Ciphertext,
		Tag:        sealed.Tag,
		Nonce:      sealed.Nonce,
	}, nil
}

// DecryptRecord opens an encrypted record. Authentication failures are
// reported as cryptox.ErrDecryption.
func DecryptRecord(e *EncryptedVaultRecord, key []byte) (*VaultRecord, error) {
	s := &cryptox.Sealed{Ciphertext: e.Ciphertext, Tag: e.Tag, Nonce: e.Nonce}
	r := &VaultRecord{ID: e.ID, OwnerID: e.OwnerID}
	if err := cryptox.DecryptEntry(s, key, recordAAD(e.ID, e.OwnerID), &r.Envelope); err != nil {
		return nil, err
	}
	return r, nil
}
