// Package session owns the unlocked key material and the token pair of the
// signed-in account.
//
// A Session moves through Locked, Unlocking, Unlocked, Stale, Refreshing and
// Failed. Secrets never leave the session by reference: the vault key is
// lent to a callback through WithVaultKey and wiped on Lock.
//
// Token refresh is serialized: concurrent Refresh calls share one network
// round trip and one outcome.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/gophvault/internal/client/client"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/credentials"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"golang.org/x/sync/singleflight"
)

var (
	ErrLocked               = errors.New("session is locked")
	ErrNoCredentials        = errors.New("no stored credentials, log in first")
	ErrAlreadyUnlocked      = errors.New("session is already unlocked")
	ErrBiometricNotEnrolled = errors.New("biometric unlock is not enabled")
)

// Refresher exchanges a refresh token for a new pair.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*client.TokenPair, error)
}

// Unsealer recovers a platform-sealed private key.
type Unsealer interface {
	Unseal(blob []byte) ([]byte, error)
}

type Session struct {
	mu    sync.RWMutex
	state State

	userID       string
	accessToken  string
	refreshToken string
	keys         *cryptox.KeyPair
	vaultKey     []byte

	store  credentials.Repository
	remote Refresher
	group  singleflight.Group
	log    logging.Logger
}

func New(store credentials.Repository, remote Refresher, log logging.Logger) *Session {
	return &Session{
		state:  Locked,
		store:  store,
		remote: remote,
		log:    log.With("module", "session"),
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// AccessToken returns the current access token. It may be expired; callers
// that get client.ErrTokenExpired should MarkStale and Refresh.
func (s *Session) AccessToken() (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.holdsSecrets() {
		return "", ErrLocked
	}
	return s.accessToken, nil
}

// WithVaultKey lends the vault key to fn. The key must not be retained and
// fn must not call back into the session.
func (s *Session) WithVaultKey(fn func(key []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.state.holdsSecrets() {
		return ErrLocked
	}
	return fn(s.vaultKey)
}

type unlockResult struct {
	keys     *cryptox.KeyPair
	vaultKey []byte
	err      error
}

func (r unlockResult) wipe() {
	if r.keys != nil {
		r.keys.Destroy()
	}
	common.WipeByteArray(r.vaultKey)
}

// beginUnlock moves Locked or Failed to Unlocking.
func (s *Session) beginUnlock() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Locked, Failed:
		s.state = Unlocking
		return nil
	case Unlocking:
		return errors.New("unlock already in progress")
	default:
		return ErrAlreadyUnlocked
	}
}

func (s *Session) abortUnlock() {
	s.mu.Lock()
	s.state = Locked
	s.mu.Unlock()
}

// Unlock derives the key pair from the password and the stored parameters
// and checks it against the stored public key. A wrong password leaves the
// session Locked with cryptox.ErrInvalidPassword.
//
// Derivation runs off the caller's goroutine; if ctx is done first Unlock
// returns ctx.Err() and the late result is wiped.
func (s *Session) Unlock(ctx context.Context, password []byte) error {
	if err := s.beginUnlock(); err != nil {
		return err
	}

	creds, err := s.store.Get(ctx)
	if err != nil {
		s.abortUnlock()
		if errors.Is(err, common.ErrorNotFound) {
			return ErrNoCredentials
		}
		return fmt.Errorf("load credentials: %w", err)
	}

	pw := make([]byte, len(password))
	copy(pw, password)

	done := make(chan unlockResult, 1)
	go func() {
		defer common.WipeByteArray(pw)
		done <- deriveFn(pw, creds)
	}()

	select {
	case <-ctx.Done():
		s.abortUnlock()
		go func() { (<-done).wipe() }()
		return ctx.Err()
	case res := <-done:
		if res.err != nil {
			s.abortUnlock()
			return res.err
		}
		s.install(creds, res.keys, res.vaultKey)
		s.log.Info(ctx, "session unlocked", "state", s.State().String())
		return nil
	}
}

// deriveFn is swapped in tests to control derivation timing.
var deriveFn = derive

func derive(password []byte, creds *models.Credentials) unlockResult {
	base := cryptox.DeriveBaseSecret(password, creds.Email, creds.Params)
	defer common.WipeByteArray(base)

	kp, err := cryptox.KeyPairFromSecret(base)
	if err != nil {
		return unlockResult{err: err}
	}
	return finishKeys(kp, creds)
}

func finishKeys(kp *cryptox.KeyPair, creds *models.Credentials) unlockResult {
	if err := cryptox.VerifyPublicKey(kp.Public, creds.PublicKey); err != nil {
		kp.Destroy()
		return unlockResult{err: err}
	}
	vk, err := cryptox.VaultKey(kp)
	if err != nil {
		kp.Destroy()
		return unlockResult{err: err}
	}
	return unlockResult{keys: kp, vaultKey: vk}
}

// UnlockWithSealer unlocks from the platform-sealed private key instead of
// the password.
func (s *Session) UnlockWithSealer(ctx context.Context, u Unsealer) error {
	if err := s.beginUnlock(); err != nil {
		return err
	}

	creds, err := s.store.Get(ctx)
	if err != nil {
		s.abortUnlock()
		if errors.Is(err, common.ErrorNotFound) {
			return ErrNoCredentials
		}
		return fmt.Errorf("load credentials: %w", err)
	}
	if len(creds.BiometricPrivateKey) == 0 {
		s.abortUnlock()
		return ErrBiometricNotEnrolled
	}

	priv, err := u.Unseal(creds.BiometricPrivateKey)
	if err != nil {
		s.abortUnlock()
		return fmt.Errorf("unseal private key: %w", err)
	}
	pub, err := cryptox.PublicKeyFromPrivate(priv)
	if err != nil {
		common.WipeByteArray(priv)
		s.abortUnlock()
		return err
	}

	res := finishKeys(&cryptox.KeyPair{Private: priv, Public: pub}, creds)
	if res.err != nil {
		s.abortUnlock()
		return res.err
	}
	s.install(creds, res.keys, res.vaultKey)
	s.log.Info(ctx, "session unlocked with sealed key")
	return nil
}

// Establish installs a key pair obtained by an online login. The session
// takes ownership of kp.
func (s *Session) Establish(creds *models.Credentials, kp *cryptox.KeyPair) error {
	if err := s.beginUnlock(); err != nil {
		kp.Destroy()
		return err
	}
	res := finishKeys(kp, creds)
	if res.err != nil {
		s.abortUnlock()
		return res.err
	}
	s.install(creds, res.keys, res.vaultKey)
	return nil
}

func (s *Session) install(creds *models.Credentials, kp *cryptox.KeyPair, vaultKey []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.userID = creds.UserID
	s.accessToken = creds.AccessToken
	s.refreshToken = creds.RefreshToken
	s.keys = kp
	s.vaultKey = vaultKey
	if creds.RequireRefresh {
		s.state = Stale
	} else {
		s.state = Unlocked
	}
}

// MarkStale records that the access token was rejected as expired.
func (s *Session) MarkStale(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Unlocked {
		st := s.state
		s.mu.Unlock()
		if st.holdsSecrets() {
			return nil
		}
		return ErrLocked
	}
	s.state = Stale
	s.mu.Unlock()

	if err := s.store.SetRequireRefresh(ctx, true); err != nil {
		return fmt.Errorf("persist require_refresh: %w", err)
	}
	return nil
}

// Refresh rotates the token pair.
//
// On client.ErrNetwork or an *client.ApiError the session goes back to Stale
// with the old pair kept. On client.ErrAuth it goes to Failed: secrets are
// wiped and the stored tokens cleared. If the new pair cannot be persisted
// the session stays Stale on the old pair.
//
// Concurrent callers share one call. A caller whose ctx ends returns
// ctx.Err() while the shared call runs on for the others.
func (s *Session) Refresh(ctx context.Context) error {
	ch := s.group.DoChan("refresh", func() (any, error) {
		return nil, s.refresh(context.WithoutCancel(ctx))
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (s *Session) refresh(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Unlocked && s.state != Stale {
		s.mu.Unlock()
		return ErrLocked
	}
	s.state = Refreshing
	refreshToken := s.refreshToken
	s.mu.Unlock()

	pair, err := s.remote.Refresh(ctx, refreshToken)
	if err != nil {
		return s.refreshFailed(ctx, err)
	}

	// disk first, memory second
	if err := s.store.UpdateTokens(ctx, pair.AccessToken, pair.RefreshToken); err != nil {
		s.mu.Lock()
		if s.state == Refreshing {
			s.state = Stale
		}
		s.mu.Unlock()
		s.log.Error(ctx, "failed to persist refreshed tokens", "error", err)
		return fmt.Errorf("persist tokens: %w", err)
	}

	s.mu.Lock()
	if s.state != Refreshing {
		// locked while the call was in flight
		s.mu.Unlock()
		return ErrLocked
	}
	s.accessToken = pair.AccessToken
	s.refreshToken = pair.RefreshToken
	s.state = Unlocked
	s.mu.Unlock()

	s.log.Info(ctx, "access token refreshed")
	return nil
}

func (s *Session) refreshFailed(ctx context.Context, cause error) error {
	if errors.Is(cause, client.ErrAuth) {
		s.mu.Lock()
		s.wipeLocked()
		s.state = Failed
		s.mu.Unlock()

		if err := s.store.ClearTokens(ctx); err != nil {
			s.log.Error(ctx, "failed to clear tokens", "error", err)
		}
		s.log.Warn(ctx, "refresh rejected, session failed")
		return cause
	}

	s.mu.Lock()
	if s.state == Refreshing {
		s.state = Stale
	}
	s.mu.Unlock()

	if errors.Is(cause, client.ErrNetwork) {
		if err := s.store.SetRequireRefresh(ctx, true); err != nil {
			s.log.Error(ctx, "failed to persist require_refresh", "error", err)
		}
	}
	s.log.Warn(ctx, "token refresh failed", "error", cause)
	return cause
}

// Lock zeroes every secret and returns to Locked.
func (s *Session) Lock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wipeLocked()
	s.state = Locked
}

func (s *Session) wipeLocked() {
	if s.keys != nil {
		s.keys.Destroy()
		s.keys = nil
	}
	common.WipeByteArray(s.vaultKey)
	s.vaultKey = nil
	s.accessToken = ""
	s.refreshToken = ""
	s.userID = ""
}
