package grpc

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/services"
)

type fakeUsers struct {
	preLoginErr error
	registerErr error
	loginErr    error
	refreshErr  error

	registered *services.RegisterInput
	serverPub  []byte
	user       *models.User
}

func (f *fakeUsers) PreLogin(ctx context.Context, email string) (*services.PreLoginResult, error) {
	if f.preLoginErr != nil {
		return nil, f.preLoginErr
	}
	return &services.PreLoginResult{Params: cryptox.DefaultArgon2Params(), ServerPublicKey: f.serverPub}, nil
}

func (f *fakeUsers) Register(ctx context.Context, in services.RegisterInput) (*models.User, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	f.registered = &in
	f.user = &models.User{ID: "user-1", Email: in.Email, PublicKey: in.PublicKey}
	return f.user, nil
}

func (f *fakeUsers) Login(ctx context.Context, email string, verifier []byte) (*services.LoginResult, error) {
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	if f.user == nil {
		return nil, common.ErrorUnauthorized
	}
	return &services.LoginResult{
		User:   f.user,
		Tokens: &services.TokenPair{AccessToken: "access", RefreshToken: "refresh"},
	}, nil
}

func (f *fakeUsers) RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &services.TokenPair{AccessToken: "access-2", RefreshToken: "refresh-2"}, nil
}

// fakeCiphers is an in-memory record store keyed by owner and id.
type fakeCiphers struct {
	records map[string]map[string]*models.Cipher
	clock   int64
	err     error
}

func newFakeCiphers() *fakeCiphers {
	return &fakeCiphers{records: map[string]map[string]*models.Cipher{}, clock: 100}
}

func (f *fakeCiphers) list(userID string, since int64) []*models.Cipher {
	out := []*models.Cipher{}
	for _, c := range f.records[userID] {
		if c.UpdatedAt >= since {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeCiphers) All(ctx context.Context, userID string) (*services.Snapshot, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.Snapshot{Ciphers: f.list(userID, 0), ServerTime: f.clock}, nil
}

func (f *fakeCiphers) Since(ctx context.Context, userID string, since int64) (*services.Delta, error) {
	if f.err != nil {
		return nil, f.err
	}
	ids := []string{}
	for _, c := range f.list(userID, 0) {
		ids = append(ids, c.ID)
	}
	return &services.Delta{LiveIDs: ids, Changed: f.list(userID, since), ServerTime: f.clock}, nil
}

func (f *fakeCiphers) Insert(ctx context.Context, c *models.Cipher) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if c == nil || c.ID == "" {
		return 0, common.ErrorValidation
	}
	if _, ok := f.records[c.UserID][c.ID]; ok {
		return 0, common.ErrorAlreadyExists
	}
	if f.records[c.UserID] == nil {
		f.records[c.UserID] = map[string]*models.Cipher{}
	}
	f.clock++
	c.UpdatedAt = f.clock
	f.records[c.UserID][c.ID] = c
	return c.UpdatedAt, nil
}

func (f *fakeCiphers) Update(ctx context.Context, c *models.Cipher) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if c == nil || c.ID == "" {
		return 0, common.ErrorValidation
	}
	if _, ok := f.records[c.UserID][c.ID]; !ok {
		return 0, common.ErrorNotFound
	}
	f.clock++
	c.UpdatedAt = f.clock
	f.records[c.UserID][c.ID] = c
	return c.UpdatedAt, nil
}

func (f *fakeCiphers) Delete(ctx context.Context, userID, id string) error {
	if f.err != nil {
		return f.err
	}
	if _, ok := f.records[userID][id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.records[userID], id)
	return nil
}
