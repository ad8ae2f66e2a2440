package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophvault/internal/client/client"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/client/repositories/repomanager"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/logging"
)

const minPasswordLength = 8

// AuthService handles registration, online login, local unlock, logout and
// sealed-key enrolment.
//
// The password never leaves the process: the server only ever receives the
// public key and the agreement-based verifier.
type AuthService struct {
	db     *sql.DB
	repos  repomanager.RepositoryManager
	remote client.Client
	sess   Session
	sealer Sealer
	log    logging.Logger

	// params used for new accounts
	params cryptox.Argon2Params
}

func NewAuthService(db *sql.DB, repos repomanager.RepositoryManager, remote client.Client, sess Session, sealer Sealer, log logging.Logger) *AuthService {
	return &AuthService{
		db:     db,
		repos:  repos,
		remote: remote,
		sess:   sess,
		sealer: sealer,
		log:    log.With("module", "auth"),
		params: cryptox.DefaultArgon2Params(),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", common.ErrorValidation, msg)
}

// deriveKeys runs the KDF and turns the result into a key pair. The caller
// owns both results and must wipe them.
func deriveKeys(password []byte, email string, params cryptox.Argon2Params) ([]byte, *cryptox.KeyPair, error) {
	base := cryptox.DeriveBaseSecret(password, email, params)
	kp, err := cryptox.KeyPairFromSecret(base)
	if err != nil {
		common.WipeByteArray(base)
		return nil, nil, err
	}
	return base, kp, nil
}

// Register creates the account on the server. It does not sign in.
func (a *AuthService) Register(ctx context.Context, email string, password, confirm []byte, hint string) error {
	email = normalizeEmail(email)
	switch {
	case !strings.Contains(email, "@"):
		return validationError("invalid email")
	case len(password) < minPasswordLength:
		return validationError(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	case string(password) != string(confirm):
		return validationError("passwords do not match")
	}

	pre, err := a.remote.PreLogin(ctx, email)
	if err != nil {
		return fmt.Errorf("prelogin: %w", err)
	}

	base, kp, err := deriveKeys(password, email, a.params)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(base)
	defer kp.Destroy()

	verifier, err := cryptox.AuthVerifier(kp.Private, pre.ServerPublicKey)
	if err != nil {
		return err
	}

	userID, err := a.remote.Register(ctx, client.RegisterInput{
		Email:        email,
		PublicKey:    kp.Public,
		Params:       a.params,
		Verifier:     verifier,
		PasswordHint: hint,
	})
	if err != nil {
		return err
	}
	a.log.Info(ctx, "account registered", "user_id", userID)
	return nil
}

// Login authenticates online, persists the credentials and unlocks the
// session. Signing in as a different account drops the previous account's
// cache.
func (a *AuthService) Login(ctx context.Context, email string, password []byte) error {
	email = normalizeEmail(email)

	pre, err := a.remote.PreLogin(ctx, email)
	if err != nil {
		return fmt.Errorf("prelogin: %w", err)
	}
	params := pre.Params.WithDefaults()

	base, kp, err := deriveKeys(password, email, params)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(base)

	verifier, err := cryptox.AuthVerifier(kp.Private, pre.ServerPublicKey)
	if err != nil {
		kp.Destroy()
		return err
	}

	res, err := a.remote.Login(ctx, email, verifier)
	if err != nil {
		kp.Destroy()
		if errors.Is(err, client.ErrAuth) {
			return cryptox.ErrInvalidPassword
		}
		return err
	}
	if err := cryptox.VerifyPublicKey(kp.Public, res.PublicKey); err != nil {
		kp.Destroy()
		return err
	}

	sealed, err := cryptox.SealPrivateKey(kp.Private, base)
	if err != nil {
		kp.Destroy()
		return err
	}

	creds := &models.Credentials{
		UserID:              res.UserID,
		Email:               email,
		Params:              params,
		PublicKey:           kp.Public,
		EncryptedPrivateKey: sealed,
		AccessToken:         res.Tokens.AccessToken,
		RefreshToken:        res.Tokens.RefreshToken,
	}

	err = dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		credsRepo := a.repos.Credentials(tx)
		prev, err := credsRepo.Get(ctx)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		if prev != nil && prev.UserID != creds.UserID {
			if err := a.repos.Ciphers(tx).DeleteAll(ctx, prev.UserID); err != nil {
				return err
			}
		}
		if prev != nil && prev.UserID == creds.UserID {
			creds.LastSync = prev.LastSync
		}
		return credsRepo.Save(ctx, creds)
	})
	if err != nil {
		kp.Destroy()
		return fmt.Errorf("save credentials: %w", err)
	}

	a.sess.Lock()
	if err := a.sess.Establish(creds, kp); err != nil {
		return err
	}
	a.log.Info(ctx, "logged in", "user_id", res.UserID)
	return nil
}

// Unlock opens the session from stored credentials without the network.
func (a *AuthService) Unlock(ctx context.Context, password []byte) error {
	return a.sess.Unlock(ctx, password)
}

// UnlockWithSealer opens the session with the sealed private key.
func (a *AuthService) UnlockWithSealer(ctx context.Context) error {
	return a.sess.UnlockWithSealer(ctx, a.sealer)
}

// Logout locks the session and removes the credentials, the cached records
// and the device key.
func (a *AuthService) Logout(ctx context.Context) error {
	a.sess.Lock()

	err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		credsRepo := a.repos.Credentials(tx)
		creds, err := credsRepo.Get(ctx)
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := a.repos.Ciphers(tx).DeleteAll(ctx, creds.UserID); err != nil {
			return err
		}
		return credsRepo.Clear(ctx)
	})
	if err != nil {
		return fmt.Errorf("clear local data: %w", err)
	}

	if err := a.sealer.Forget(); err != nil {
		a.log.Warn(ctx, "failed to remove device key", "error", err)
	}
	a.log.Info(ctx, "logged out")
	return nil
}

// EnableBiometric seals the private key with the platform sealer so later
// unlocks need no password. The password is required once to open the
// stored private key.
func (a *AuthService) EnableBiometric(ctx context.Context, password []byte) error {
	credsRepo := a.repos.Credentials(a.db)
	creds, err := credsRepo.Get(ctx)
	if err != nil {
		return err
	}

	base := cryptox.DeriveBaseSecret(password, creds.Email, creds.Params)
	defer common.WipeByteArray(base)

	priv, err := cryptox.OpenPrivateKey(creds.EncryptedPrivateKey, base)
	if err != nil {
		if errors.Is(err, cryptox.ErrDecryption) {
			return cryptox.ErrInvalidPassword
		}
		return err
	}
	defer common.WipeByteArray(priv)

	pub, err := cryptox.PublicKeyFromPrivate(priv)
	if err != nil {
		return err
	}
	if err := cryptox.VerifyPublicKey(pub, creds.PublicKey); err != nil {
		return err
	}

	blob, err := a.sealer.Seal(priv)
	if err != nil {
		return fmt.Errorf("seal private key: %w", err)
	}
	if err := credsRepo.SetBiometric(ctx, blob); err != nil {
		return err
	}
	a.log.Info(ctx, "sealed-key unlock enabled")
	return nil
}

// DisableBiometric drops the sealed blob and the device key.
func (a *AuthService) DisableBiometric(ctx context.Context) error {
	if err := a.repos.Credentials(a.db).SetBiometric(ctx, nil); err != nil {
		return err
	}
	return a.sealer.Forget()
}

// HasCredentials reports whether an account is stored locally.
func (a *AuthService) HasCredentials(ctx context.Context) (bool, error) {
	_, err := a.repos.Credentials(a.db).Get(ctx)
	if errors.Is(err, common.ErrorNotFound) {
		return false, nil
	}
	return err == nil, err
}

func (a *AuthService) Ping(ctx context.Context) error {
	return a.remote.Ping(ctx)
}
