package session

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/client/client"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/credentials"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testEmail    = "alice@example.com"
	testPassword = "correct horse battery"
)

var testParams = cryptox.Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1}

type fakeRefresher struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
	pair    *client.TokenPair
	err     error
	ctxErr  error
}

func (f *fakeRefresher) Refresh(ctx context.Context, refreshToken string) (*client.TokenPair, error) {
	f.calls.Add(1)
	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.release != nil {
		<-f.release
	}
	f.ctxErr = ctx.Err()
	return f.pair, f.err
}

type failingTokenStore struct {
	credentials.Repository
	err error
}

func (f *failingTokenStore) UpdateTokens(ctx context.Context, accessToken, refreshToken string) error {
	return f.err
}

type fakeUnsealer struct {
	priv []byte
	err  error
}

func (f *fakeUnsealer) Unseal(blob []byte) ([]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]byte, len(f.priv))
	copy(out, f.priv)
	return out, nil
}

func testLogger() logging.Logger {
	return logging.Discard()
}

func testKeyPair(t *testing.T, password string) *cryptox.KeyPair {
	t.Helper()
	kp, err := cryptox.KeyPairFromSecret(cryptox.DeriveBaseSecret([]byte(password), testEmail, testParams))
	require.NoError(t, err)
	return kp
}

type fixture struct {
	db     *sql.DB
	store  credentials.Repository
	remote *fakeRefresher
	s      *Session
	kp     *cryptox.KeyPair
}

func setup(t *testing.T, requireRefresh bool) *fixture {
	t.Helper()
	ctx := context.Background()

	db, err := repomanager.OpenDatabase(ctx, filepath.Join(t.TempDir(), "vault.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	kp := testKeyPair(t, testPassword)
	base := cryptox.DeriveBaseSecret([]byte(testPassword), testEmail, testParams)
	sealed, err := cryptox.SealPrivateKey(kp.Private, base)
	require.NoError(t, err)

	store := credentials.NewSQLiteRepository(db)
	require.NoError(t, store.Save(ctx, &models.Credentials{
		UserID:              "user-1",
		Email:               testEmail,
		Params:              testParams,
		PublicKey:           kp.Public,
		EncryptedPrivateKey: sealed,
		AccessToken:         "A1",
		RefreshToken:        "R1",
		RequireRefresh:      requireRefresh,
	}))

	remote := &fakeRefresher{pair: &client.TokenPair{AccessToken: "A2", RefreshToken: "R2"}}
	return &fixture{db: db, store: store, remote: remote, s: New(store, remote, testLogger()), kp: kp}
}

func unlocked(t *testing.T) *fixture {
	t.Helper()
	f := setup(t, false)
	require.NoError(t, f.s.Unlock(context.Background(), []byte(testPassword)))
	return f
}

func TestUnlock_Success(t *testing.T) {
	f := setup(t, false)

	require.NoError(t, f.s.Unlock(context.Background(), []byte(testPassword)))
	assert.Equal(t, Unlocked, f.s.State())
	assert.Equal(t, "user-1", f.s.UserID())

	tok, err := f.s.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "A1", tok)

	want, err := cryptox.VaultKey(f.kp)
	require.NoError(t, err)
	require.NoError(t, f.s.WithVaultKey(func(key []byte) error {
		assert.Equal(t, want, key)
		return nil
	}))
}

func TestUnlock_RequireRefreshStartsStale(t *testing.T) {
	f := setup(t, true)

	require.NoError(t, f.s.Unlock(context.Background(), []byte(testPassword)))
	assert.Equal(t, Stale, f.s.State())
}

func TestUnlock_WrongPassword(t *testing.T) {
	f := setup(t, false)

	err := f.s.Unlock(context.Background(), []byte("wrong password"))
	require.ErrorIs(t, err, cryptox.ErrInvalidPassword)
	assert.Equal(t, Locked, f.s.State())

	_, err = f.s.AccessToken()
	require.ErrorIs(t, err, ErrLocked)
	require.ErrorIs(t, f.s.WithVaultKey(func([]byte) error { return nil }), ErrLocked)
}

func TestUnlock_NoCredentials(t *testing.T) {
	f := setup(t, false)
	require.NoError(t, f.store.Clear(context.Background()))

	err := f.s.Unlock(context.Background(), []byte(testPassword))
	require.ErrorIs(t, err, ErrNoCredentials)
	assert.Equal(t, Locked, f.s.State())
}

func TestUnlock_AlreadyUnlocked(t *testing.T) {
	f := unlocked(t)
	require.ErrorIs(t, f.s.Unlock(context.Background(), []byte(testPassword)), ErrAlreadyUnlocked)
}

func TestUnlock_CancelledWipesLateResult(t *testing.T) {
	f := setup(t, false)

	started := make(chan struct{})
	release := make(chan struct{})
	wiped := make(chan []byte, 1)
	orig := deriveFn
	deriveFn = func(password []byte, creds *models.Credentials) unlockResult {
		close(started)
		<-release
		res := orig(password, creds)
		// observe the vault key after the session has wiped it
		go func() {
			time.Sleep(50 * time.Millisecond)
			wiped <- res.vaultKey
		}()
		return res
	}
	t.Cleanup(func() { deriveFn = orig })

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- f.s.Unlock(ctx, []byte(testPassword)) }()

	<-started
	cancel()
	require.ErrorIs(t, <-result, context.Canceled)
	assert.Equal(t, Locked, f.s.State())

	close(release)
	select {
	case key := <-wiped:
		require.NotEmpty(t, key)
		assert.Equal(t, make([]byte, len(key)), key)
	case <-time.After(2 * time.Second):
		t.Fatal("derivation did not finish")
	}
}

func TestUnlockWithSealer(t *testing.T) {
	ctx := context.Background()

	t.Run("not enrolled", func(t *testing.T) {
		f := setup(t, false)
		err := f.s.UnlockWithSealer(ctx, &fakeUnsealer{priv: f.kp.Private})
		require.ErrorIs(t, err, ErrBiometricNotEnrolled)
		assert.Equal(t, Locked, f.s.State())
	})

	t.Run("success", func(t *testing.T) {
		f := setup(t, false)
		require.NoError(t, f.store.SetBiometric(ctx, []byte("sealed")))

		require.NoError(t, f.s.UnlockWithSealer(ctx, &fakeUnsealer{priv: f.kp.Private}))
		assert.Equal(t, Unlocked, f.s.State())
	})

	t.Run("foreign key", func(t *testing.T) {
		f := setup(t, false)
		require.NoError(t, f.store.SetBiometric(ctx, []byte("sealed")))

		other := testKeyPair(t, "another password")
		err := f.s.UnlockWithSealer(ctx, &fakeUnsealer{priv: other.Private})
		require.ErrorIs(t, err, cryptox.ErrInvalidPassword)
		assert.Equal(t, Locked, f.s.State())
	})

	t.Run("unseal error", func(t *testing.T) {
		f := setup(t, false)
		require.NoError(t, f.store.SetBiometric(ctx, []byte("sealed")))

		boom := errors.New("keyring locked")
		err := f.s.UnlockWithSealer(ctx, &fakeUnsealer{err: boom})
		require.ErrorIs(t, err, boom)
		assert.Equal(t, Locked, f.s.State())
	})
}

func TestEstablish(t *testing.T) {
	f := setup(t, false)
	creds, err := f.store.Get(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.s.Establish(creds, testKeyPair(t, testPassword)))
	assert.Equal(t, Unlocked, f.s.State())

	f.s.Lock()
	err = f.s.Establish(creds, testKeyPair(t, "not the password"))
	require.ErrorIs(t, err, cryptox.ErrInvalidPassword)
	assert.Equal(t, Locked, f.s.State())
}

func TestMarkStale(t *testing.T) {
	f := unlocked(t)
	ctx := context.Background()

	require.NoError(t, f.s.MarkStale(ctx))
	assert.Equal(t, Stale, f.s.State())

	creds, err := f.store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, creds.RequireRefresh)

	f.s.Lock()
	require.ErrorIs(t, f.s.MarkStale(ctx), ErrLocked)
}

func TestRefresh_Success(t *testing.T) {
	f := setup(t, true)
	ctx := context.Background()
	require.NoError(t, f.s.Unlock(ctx, []byte(testPassword)))

	require.NoError(t, f.s.Refresh(ctx))
	assert.Equal(t, Unlocked, f.s.State())

	tok, err := f.s.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "A2", tok)

	creds, err := f.store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A2", creds.AccessToken)
	assert.Equal(t, "R2", creds.RefreshToken)
	assert.False(t, creds.RequireRefresh)
}

func TestRefresh_NetworkErrorKeepsOldPair(t *testing.T) {
	f := unlocked(t)
	ctx := context.Background()
	f.remote.err = client.ErrNetwork

	require.ErrorIs(t, f.s.Refresh(ctx), client.ErrNetwork)
	assert.Equal(t, Stale, f.s.State())

	tok, err := f.s.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "A1", tok)

	creds, err := f.store.Get(ctx)
	require.NoError(t, err)
	assert.True(t, creds.RequireRefresh)
	assert.Equal(t, "R1", creds.RefreshToken)
}

func TestRefresh_ApiErrorGoesStale(t *testing.T) {
	f := unlocked(t)
	f.remote.err = &client.ApiError{Code: "Internal", Message: "boom"}

	var apiErr *client.ApiError
	require.ErrorAs(t, f.s.Refresh(context.Background()), &apiErr)
	assert.Equal(t, Stale, f.s.State())
}

func TestRefresh_AuthErrorFails(t *testing.T) {
	f := unlocked(t)
	ctx := context.Background()
	f.remote.err = client.ErrAuth

	var leaked []byte
	require.NoError(t, f.s.WithVaultKey(func(key []byte) error {
		leaked = key
		return nil
	}))

	require.ErrorIs(t, f.s.Refresh(ctx), client.ErrAuth)
	assert.Equal(t, Failed, f.s.State())
	assert.Equal(t, make([]byte, len(leaked)), leaked)
	require.ErrorIs(t, f.s.WithVaultKey(func([]byte) error { return nil }), ErrLocked)

	creds, err := f.store.Get(ctx)
	require.NoError(t, err)
	assert.Empty(t, creds.AccessToken)
	assert.Empty(t, creds.RefreshToken)
	assert.Equal(t, "user-1", creds.UserID)

	// the account row survives, so a password unlock is still possible
	require.NoError(t, f.s.Unlock(ctx, []byte(testPassword)))
	assert.Equal(t, Stale, f.s.State())
}

func TestRefresh_Locked(t *testing.T) {
	f := setup(t, false)
	require.ErrorIs(t, f.s.Refresh(context.Background()), ErrLocked)
	assert.Zero(t, f.remote.calls.Load())
}

func TestRefresh_ConcurrentCallersShareOneCall(t *testing.T) {
	f := unlocked(t)
	f.remote.started = make(chan struct{}, 1)
	f.remote.release = make(chan struct{})

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)

	wg.Add(1)
	go func() {
		defer wg.Done()
		errs <- f.s.Refresh(context.Background())
	}()
	<-f.remote.started

	for i := 1; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- f.s.Refresh(context.Background())
		}()
	}
	time.Sleep(100 * time.Millisecond)
	close(f.remote.release)
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), f.remote.calls.Load())
	assert.Equal(t, Unlocked, f.s.State())
}

func TestRefresh_LockDuringCallDiscardsPair(t *testing.T) {
	f := unlocked(t)
	f.remote.started = make(chan struct{}, 1)
	f.remote.release = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- f.s.Refresh(context.Background()) }()
	<-f.remote.started

	f.s.Lock()
	close(f.remote.release)

	require.ErrorIs(t, <-done, ErrLocked)
	assert.Equal(t, Locked, f.s.State())
}

func TestRefresh_CancelledCallerLeavesOthersRunning(t *testing.T) {
	f := unlocked(t)
	f.remote.started = make(chan struct{}, 1)
	f.remote.release = make(chan struct{})

	first, cancel := context.WithCancel(context.Background())
	defer cancel()

	firstErr := make(chan error, 1)
	go func() { firstErr <- f.s.Refresh(first) }()
	<-f.remote.started

	secondErr := make(chan error, 1)
	go func() { secondErr <- f.s.Refresh(context.Background()) }()
	time.Sleep(100 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-firstErr, context.Canceled)

	close(f.remote.release)
	require.NoError(t, <-secondErr)
	assert.NoError(t, f.remote.ctxErr)
	assert.Equal(t, int32(1), f.remote.calls.Load())
	assert.Equal(t, Unlocked, f.s.State())

	tok, err := f.s.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "A2", tok)
}

func TestRefresh_PersistFailureStaysStale(t *testing.T) {
	f := setup(t, false)
	ctx := context.Background()
	boom := errors.New("disk full")

	s := New(&failingTokenStore{Repository: f.store, err: boom}, f.remote, testLogger())
	require.NoError(t, s.Unlock(ctx, []byte(testPassword)))

	require.ErrorIs(t, s.Refresh(ctx), boom)
	assert.Equal(t, Stale, s.State())

	tok, err := s.AccessToken()
	require.NoError(t, err)
	assert.Equal(t, "A1", tok)

	creds, err := f.store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "A1", creds.AccessToken)
	assert.Equal(t, "R1", creds.RefreshToken)
}

func TestLock_ZeroesSecrets(t *testing.T) {
	f := unlocked(t)

	var leaked []byte
	require.NoError(t, f.s.WithVaultKey(func(key []byte) error {
		leaked = key
		return nil
	}))
	require.NotEqual(t, make([]byte, len(leaked)), leaked)

	f.s.Lock()
	assert.Equal(t, Locked, f.s.State())
	assert.Equal(t, make([]byte, len(leaked)), leaked)
	assert.Empty(t, f.s.UserID())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "locked", Locked.String())
	assert.Equal(t, "refreshing", Refreshing.String())
	assert.Equal(t, "unknown", State(99).String())
}
