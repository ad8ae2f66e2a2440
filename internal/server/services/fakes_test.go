package services

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/ciphers"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/users"
)

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type fakeUsersRepo struct {
	byEmail   map[string]*models.User
	createErr error
	getErr    error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) error {
	if f.createErr != nil {
		return f.createErr
	}
	if _, ok := f.byEmail[u.Email]; ok {
		return common.ErrorAlreadyExists
	}
	f.byEmail[u.Email] = u
	return nil
}

func (f *fakeUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	u, ok := f.byEmail[email]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

type fakeRefreshRepo struct {
	mu         sync.Mutex
	tokens     map[string]*models.RefreshToken
	createErr  error
	consumeErr error
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID string, token string, validity time.Duration) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokens[token] = &models.RefreshToken{UserID: userID, Token: token, ExpiresAt: time.Now().Add(validity)}
	return nil
}

func (f *fakeRefreshRepo) Consume(ctx context.Context, token string) (*models.RefreshToken, error) {
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(f.tokens, token)
	return t, nil
}

func (f *fakeRefreshRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, t := range f.tokens {
		if t.Expired(now) {
			delete(f.tokens, k)
			n++
		}
	}
	return n, nil
}

type fakeCiphersRepo struct {
	rows map[string]*models.Cipher
	err  error
}

func (f *fakeCiphersRepo) Insert(ctx context.Context, c *models.Cipher) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.rows[c.ID]; ok {
		return common.ErrorAlreadyExists
	}
	cp := *c
	f.rows[c.ID] = &cp
	return nil
}

func (f *fakeCiphersRepo) Update(ctx context.Context, c *models.Cipher) error {
	if f.err != nil {
		return f.err
	}
	cur, ok := f.rows[c.ID]
	if !ok || cur.UserID != c.UserID {
		return common.ErrorNotFound
	}
	cp := *c
	f.rows[c.ID] = &cp
	return nil
}

func (f *fakeCiphersRepo) Delete(ctx context.Context, userID, id string) error {
	if f.err != nil {
		return f.err
	}
	cur, ok := f.rows[id]
	if !ok || cur.UserID != userID {
		return common.ErrorNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeCiphersRepo) owned(userID string, keep func(*models.Cipher) bool) []*models.Cipher {
	out := make([]*models.Cipher, 0)
	for _, c := range f.rows {
		if c.UserID == userID && keep(c) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeCiphersRepo) All(ctx context.Context, userID string) ([]*models.Cipher, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.owned(userID, func(*models.Cipher) bool { return true }), nil
}

func (f *fakeCiphersRepo) Since(ctx context.Context, userID string, since int64) ([]*models.Cipher, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.owned(userID, func(c *models.Cipher) bool { return c.UpdatedAt >= since }), nil
}

func (f *fakeCiphersRepo) LiveIDs(ctx context.Context, userID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	ids := make([]string, 0)
	for _, c := range f.owned(userID, func(*models.Cipher) bool { return true }) {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

type fakeRM struct {
	users   *fakeUsersRepo
	refresh *fakeRefreshRepo
	ciphers *fakeCiphersRepo
}

func newFakeRM() *fakeRM {
	return &fakeRM{
		users:   &fakeUsersRepo{byEmail: map[string]*models.User{}},
		refresh: &fakeRefreshRepo{tokens: map[string]*models.RefreshToken{}},
		ciphers: &fakeCiphersRepo{rows: map[string]*models.Cipher{}},
	}
}

func (m *fakeRM) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *fakeRM) Users(dbx.DBTX) users.Repository                 { return m.users }
func (m *fakeRM) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return m.refresh }
func (m *fakeRM) Ciphers(dbx.DBTX) ciphers.Repository             { return m.ciphers }
