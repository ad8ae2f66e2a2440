package services

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/client/client"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/client/session"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/stretchr/testify/require"
)

const (
	testOwner = "user-1"
	testEmail = "alice@example.com"
)

var testParams = cryptox.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1}

/*************
 * Fake remote store
 *************/

type fakeUser struct {
	id        string
	publicKey []byte
	params    cryptox.Argon2Params
}

type fakeRemote struct {
	mu sync.Mutex

	records map[string]*models.EncryptedVaultRecord
	clock   int64
	// reportTime makes fetches return the server clock
	reportTime bool

	serverKeys *cryptox.KeyPair
	users      map[string]*fakeUser
	registered []client.RegisterInput

	allCalls     int
	sinceCalls   []int64
	refreshCalls int
	writeCalls   int

	fetchErr     error
	writeErr     error
	refreshErr   error
	expireFetch  int
	expireWrites int
	gate         chan struct{}
	// paused and resume hold a delta after it was built, before it is returned
	paused chan struct{}
	resume chan struct{}
}

func newFakeRemote(t *testing.T) *fakeRemote {
	t.Helper()
	kp, err := cryptox.KeyPairFromSecret(bytes.Repeat([]byte{7}, cryptox.KeyLength))
	require.NoError(t, err)
	return &fakeRemote{
		records:    map[string]*models.EncryptedVaultRecord{},
		clock:      1000,
		serverKeys: kp,
		users:      map[string]*fakeUser{},
	}
}

func (f *fakeRemote) tick() int64 {
	f.clock++
	return f.clock
}

func (f *fakeRemote) put(r *models.EncryptedVaultRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	cp.UpdatedAt = f.tick()
	f.records[r.ID] = &cp
}

// putAt stores r stamped at ts and moves the clock forward to ts.
func (f *fakeRemote) putAt(r *models.EncryptedVaultRecord, ts int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *r
	cp.UpdatedAt = ts
	f.records[r.ID] = &cp
	if ts > f.clock {
		f.clock = ts
	}
}

func (f *fakeRemote) remove(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
}

func (f *fakeRemote) has(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.records[id]
	return ok
}

func (f *fakeRemote) Close() error { return nil }

func (f *fakeRemote) Ping(ctx context.Context) error { return nil }

func (f *fakeRemote) PreLogin(ctx context.Context, email string) (*client.PreLoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	params := testParams
	if u, ok := f.users[email]; ok {
		params = u.params
	}
	return &client.PreLoginResult{Params: params, ServerPublicKey: f.serverKeys.Public}, nil
}

func (f *fakeRemote) Register(ctx context.Context, in client.RegisterInput) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want, err := cryptox.AuthVerifier(f.serverKeys.Private, in.PublicKey)
	if err != nil || !bytes.Equal(want, in.Verifier) {
		return "", &client.ApiError{Code: "InvalidArgument", Message: "bad verifier"}
	}
	if _, ok := f.users[in.Email]; ok {
		return "", &client.ApiError{Code: "AlreadyExists", Message: "email taken"}
	}
	id := "user-" + in.Email
	f.users[in.Email] = &fakeUser{id: id, publicKey: in.PublicKey, params: in.Params}
	f.registered = append(f.registered, in)
	return id, nil
}

func (f *fakeRemote) Login(ctx context.Context, email string, verifier []byte) (*client.LoginResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[email]
	if !ok {
		return nil, client.ErrAuth
	}
	want, err := cryptox.AuthVerifier(f.serverKeys.Private, u.publicKey)
	if err != nil || !bytes.Equal(want, verifier) {
		return nil, client.ErrAuth
	}
	return &client.LoginResult{
		UserID:    u.id,
		PublicKey: u.publicKey,
		Tokens:    client.TokenPair{AccessToken: "A1", RefreshToken: "R1"},
	}, nil
}

func (f *fakeRemote) Refresh(ctx context.Context, refreshToken string) (*client.TokenPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshCalls++
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &client.TokenPair{AccessToken: "A-fresh", RefreshToken: "R-fresh"}, nil
}

func (f *fakeRemote) beginFetch() error {
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expireFetch > 0 {
		f.expireFetch--
		return client.ErrTokenExpired
	}
	return f.fetchErr
}

func (f *fakeRemote) serverTime() int64 {
	if f.reportTime {
		return f.clock
	}
	return 0
}

func (f *fakeRemote) AllRecords(ctx context.Context, accessToken string) (*client.Snapshot, error) {
	f.mu.Lock()
	f.allCalls++
	f.mu.Unlock()
	if err := f.beginFetch(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.EncryptedVaultRecord, 0, len(f.records))
	for _, r := range f.records {
		cp := *r
		out = append(out, &cp)
	}
	return &client.Snapshot{Records: out, ServerTime: f.serverTime()}, nil
}

func (f *fakeRemote) SyncSince(ctx context.Context, accessToken string, since int64) (*client.Delta, error) {
	f.mu.Lock()
	f.sinceCalls = append(f.sinceCalls, since)
	f.mu.Unlock()
	if err := f.beginFetch(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	d := &client.Delta{ServerTime: f.serverTime()}
	for id, r := range f.records {
		d.LiveIDs = append(d.LiveIDs, id)
		if r.UpdatedAt >= since {
			cp := *r
			d.Changed = append(d.Changed, &cp)
		}
	}
	paused, resume := f.paused, f.resume
	f.mu.Unlock()

	if paused != nil {
		paused <- struct{}{}
		<-resume
	}
	return d, nil
}

func (f *fakeRemote) write(r *models.EncryptedVaultRecord) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	if f.expireWrites > 0 {
		f.expireWrites--
		return 0, client.ErrTokenExpired
	}
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	cp := *r
	cp.UpdatedAt = f.tick()
	f.records[r.ID] = &cp
	return cp.UpdatedAt, nil
}

func (f *fakeRemote) InsertRecord(ctx context.Context, accessToken string, r *models.EncryptedVaultRecord) (int64, error) {
	return f.write(r)
}

func (f *fakeRemote) UpdateRecord(ctx context.Context, accessToken string, r *models.EncryptedVaultRecord) (int64, error) {
	return f.write(r)
}

func (f *fakeRemote) DeleteRecord(ctx context.Context, accessToken string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeCalls++
	if f.writeErr != nil {
		return f.writeErr
	}
	delete(f.records, id)
	return nil
}

/*************
 * Fake sealer
 *************/

type fakeSealer struct {
	key       []byte
	forgotten int
}

func (s *fakeSealer) Seal(plaintext []byte) ([]byte, error) {
	if s.key == nil {
		s.key = bytes.Repeat([]byte{9}, cryptox.KeyLength)
	}
	return cryptox.Seal(plaintext, s.key)
}

func (s *fakeSealer) Unseal(blob []byte) ([]byte, error) {
	if s.key == nil {
		return nil, cryptox.ErrDecryption
	}
	return cryptox.Open(blob, s.key)
}

func (s *fakeSealer) Forget() error {
	s.key = nil
	s.forgotten++
	return nil
}

/*************
 * Environment
 *************/

type env struct {
	db       *sql.DB
	repos    *repomanager.SQLiteRepositoryManager
	remote   *fakeRemote
	sess     *session.Session
	sealer   *fakeSealer
	syncer   *SyncEngine
	vault    *VaultService
	auth     *AuthService
	vaultKey []byte
	now      time.Time
}

func testLogger() logging.Logger {
	return logging.Discard()
}

// newEnv builds the services over a fresh database. No account is stored.
func newEnv(t *testing.T) *env {
	t.Helper()
	db, err := repomanager.OpenDatabase(context.Background(), filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	repos := repomanager.NewSQLiteRepositoryManager()
	remote := newFakeRemote(t)
	sess := session.New(repos.Credentials(db), remote, testLogger())
	sealer := &fakeSealer{}

	e := &env{
		db:     db,
		repos:  repos,
		remote: remote,
		sess:   sess,
		sealer: sealer,
		syncer: NewSyncEngine(db, repos, remote, sess, testLogger()),
		vault:  NewVaultService(db, repos, remote, sess, testLogger()),
		auth:   NewAuthService(db, repos, remote, sess, sealer, testLogger()),
		now:    time.Unix(5000, 0),
	}
	e.syncer.now = func() time.Time { return e.now }
	e.auth.params = testParams
	return e
}

// newUnlockedEnv stores credentials for testOwner and establishes the
// session without running the KDF.
func newUnlockedEnv(t *testing.T) *env {
	t.Helper()
	e := newEnv(t)

	secret := bytes.Repeat([]byte{3}, cryptox.KeyLength)
	kp, err := cryptox.KeyPairFromSecret(secret)
	require.NoError(t, err)
	e.vaultKey, err = cryptox.VaultKey(kp)
	require.NoError(t, err)
	sealed, err := cryptox.SealPrivateKey(kp.Private, secret)
	require.NoError(t, err)

	creds := &models.Credentials{
		UserID:              testOwner,
		Email:               testEmail,
		Params:              testParams,
		PublicKey:           kp.Public,
		EncryptedPrivateKey: sealed,
		AccessToken:         "A1",
		RefreshToken:        "R1",
	}
	require.NoError(t, e.repos.Credentials(e.db).Save(context.Background(), creds))
	require.NoError(t, e.sess.Establish(creds, kp))
	return e
}

func (e *env) encrypt(t *testing.T, id, name string) *models.EncryptedVaultRecord {
	t.Helper()
	payload, err := models.Wrap(name, models.Note{Text: "body of " + name})
	require.NoError(t, err)
	enc, err := models.EncryptRecord(&models.VaultRecord{ID: id, OwnerID: testOwner, Envelope: payload}, e.vaultKey)
	require.NoError(t, err)
	return enc
}

func (e *env) seed(t *testing.T, id, name string) {
	t.Helper()
	e.remote.put(e.encrypt(t, id, name))
}

func (e *env) cachedIDs(t *testing.T) []string {
	t.Helper()
	ids, err := e.repos.Ciphers(e.db).GetAllIDs(context.Background(), testOwner)
	require.NoError(t, err)
	return ids
}

func (e *env) creds(t *testing.T) *models.Credentials {
	t.Helper()
	c, err := e.repos.Credentials(e.db).Get(context.Background())
	require.NoError(t, err)
	return c
}

func names(v View) []string {
	out := make([]string, 0, len(v.Items))
	for _, r := range v.Items {
		out = append(out, r.Name)
	}
	return out
}
