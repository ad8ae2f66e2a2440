package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/client/client"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/google/uuid"
)

// VaultService reads the decrypted view and writes single records through
// to the remote store. The cache is only touched after the remote write
// succeeded.
type VaultService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	remote client.Client
	sess   Session
	log    logging.Logger
}

func NewVaultService(db *sql.DB, repos repomanager.RepositoryManager, remote client.Client, sess Session, log logging.Logger) *VaultService {
	return &VaultService{db: db, repos: repos, remote: remote, sess: sess, log: log.With("module", "vault")}
}

// List returns every cached record of the signed-in account, sorted by
// name and then id.
func (s *VaultService) List(ctx context.Context) (View, error) {
	return loadView(ctx, s.repos.Ciphers(s.db), s.sess)
}

// Get returns common.ErrorNotFound for unknown ids.
func (s *VaultService) Get(ctx context.Context, id string) (*models.VaultRecord, error) {
	enc, err := s.repos.Ciphers(s.db).Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if enc.OwnerID != s.sess.UserID() {
		return nil, common.ErrorNotFound
	}

	var r *models.VaultRecord
	err = s.sess.WithVaultKey(func(key []byte) error {
		r, err = models.DecryptRecord(enc, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", id, err)
	}
	return r, nil
}

// Save creates the record when ID is empty and updates it otherwise. The
// stored copy, with its assigned id, is returned.
func (s *VaultService) Save(ctx context.Context, r *models.VaultRecord) (*models.VaultRecord, error) {
	if strings.TrimSpace(r.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", common.ErrorValidation)
	}

	rec := *r
	isNew := rec.ID == ""
	if isNew {
		rec.ID = uuid.NewString()
	}
	rec.OwnerID = s.sess.UserID()

	var enc *models.EncryptedVaultRecord
	err := s.sess.WithVaultKey(func(key []byte) error {
		var err error
		enc, err = models.EncryptRecord(&rec, key)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("encrypt record: %w", err)
	}

	updatedAt, err := callWithToken(ctx, s.sess, func(token string) (int64, error) {
		if isNew {
			return s.remote.InsertRecord(ctx, token, enc)
		}
		return s.remote.UpdateRecord(ctx, token, enc)
	})
	if err != nil {
		return nil, err
	}
	enc.UpdatedAt = updatedAt

	if err := s.repos.Ciphers(s.db).Upsert(ctx, enc); err != nil {
		// the next sync pass repairs the cache
		s.log.Error(ctx, "record saved remotely but not cached", "id", rec.ID, "error", err)
		return nil, err
	}
	s.log.Info(ctx, "record saved", "id", rec.ID, "new", isNew)
	return &rec, nil
}

func (s *VaultService) Delete(ctx context.Context, id string) error {
	_, err := callWithToken(ctx, s.sess, func(token string) (struct{}, error) {
		return struct{}{}, s.remote.DeleteRecord(ctx, token, id)
	})
	if err != nil {
		return err
	}
	if err := s.repos.Ciphers(s.db).Delete(ctx, id); err != nil {
		s.log.Error(ctx, "record deleted remotely but still cached", "id", id, "error", err)
		return err
	}
	s.log.Info(ctx, "record deleted", "id", id)
	return nil
}
