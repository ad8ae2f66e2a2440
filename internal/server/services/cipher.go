package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/repomanager"
)

// Snapshot is the full set of a user's records.
type Snapshot struct {
	Ciphers    []*models.Cipher
	ServerTime int64
}

// Delta lists every live id plus the records written at or after a cursor.
type Delta struct {
	LiveIDs    []string
	Changed    []*models.Cipher
	ServerTime int64
}

// CipherService stores opaque encrypted records. It never sees plaintext and
// only enforces ownership.
type CipherService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         func() time.Time
}

func NewCipherService(db *sql.DB, m repomanager.RepositoryManager) *CipherService {
	return &CipherService{db: db, repomanager: m, now: time.Now}
}

// All returns every record of the user. ServerTime is taken before the read.
func (s *CipherService) All(ctx context.Context, userID string) (*Snapshot, error) {
	serverTime := s.now().Unix()
	list, err := s.repomanager.Ciphers(s.db).All(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Ciphers: list, ServerTime: serverTime}, nil
}

// Since returns the changes at or after since. Both queries run in one
// repeatable-read transaction so the id list and the changes agree.
func (s *CipherService) Since(ctx context.Context, userID string, since int64) (*Delta, error) {
	d := &Delta{ServerTime: s.now().Unix()}
	err := dbx.WithTx(ctx, s.db, dbx.ReadSnapshot, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Ciphers(tx)

		var err error
		if d.LiveIDs, err = repo.LiveIDs(ctx, userID); err != nil {
			return err
		}
		d.Changed, err = repo.Since(ctx, userID, since)
		return err
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Insert stores a new record and returns its server timestamp.
func (s *CipherService) Insert(ctx context.Context, c *models.Cipher) (int64, error) {
	if err := validateCipher(c); err != nil {
		return 0, err
	}
	c.UpdatedAt = s.now().Unix()
	if err := s.repomanager.Ciphers(s.db).Insert(ctx, c); err != nil {
		return 0, err
	}
	return c.UpdatedAt, nil
}

// Update replaces a record owned by c.UserID and returns its new timestamp.
func (s *CipherService) Update(ctx context.Context, c *models.Cipher) (int64, error) {
	if err := validateCipher(c); err != nil {
		return 0, err
	}
	c.UpdatedAt = s.now().Unix()
	if err := s.repomanager.Ciphers(s.db).Update(ctx, c); err != nil {
		return 0, err
	}
	return c.UpdatedAt, nil
}

func (s *CipherService) Delete(ctx context.Context, userID, id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", common.ErrorValidation)
	}
	return s.repomanager.Ciphers(s.db).Delete(ctx, userID, id)
}

func validateCipher(c *models.Cipher) error {
	switch {
	case c == nil:
		return fmt.Errorf("%w: missing record", common.ErrorValidation)
	case c.ID == "":
		return fmt.Errorf("%w: empty id", common.ErrorValidation)
	case len(c.Ciphertext) == 0, len(c.Tag) == 0, len(c.Nonce) == 0:
		return fmt.Errorf("%w: incomplete ciphertext", common.ErrorValidation)
	}
	return nil
}
