// Package services contains server-side business logic. This file implements
// UserService, which handles registration, login, and issuing/refreshing JWTs
// plus server-stored refresh tokens.
package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/server/auth"
	"github.com/dmitrijs2005/gophvault/internal/server/config"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
}

// PreLoginResult is what a client needs before it can derive its keys.
type PreLoginResult struct {
	Params          cryptox.Argon2Params
	ServerPublicKey []byte
}

type RegisterInput struct {
	Email        string
	PublicKey    []byte
	Params       cryptox.Argon2Params
	Verifier     []byte
	PasswordHint string
}

type LoginResult struct {
	User   *models.User
	Tokens *TokenPair
}

// UserService provides authentication-related operations:
// - PreLogin: derivation parameters without revealing whether the account exists
// - Register: create users after checking the proof of key possession
// - Login: verify the proof and mint tokens
// - RefreshToken: rotate refresh tokens and mint new access tokens
type UserService struct {
	db                           *sql.DB
	repomanager                  repomanager.RepositoryManager
	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration
	serverKey                    *cryptox.KeyPair
}

// NewUserService constructs a UserService using repositories and server config.
// serverKey is the X25519 pair clients agree with to produce login verifiers.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, serverKey *cryptox.KeyPair) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		serverKey:                    serverKey,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// PreLogin returns the stored parameters of a known account and the
// defaults otherwise. The server public key is always included.
func (s *UserService) PreLogin(ctx context.Context, email string) (*PreLoginResult, error) {
	res := &PreLoginResult{
		Params:          cryptox.DefaultArgon2Params(),
		ServerPublicKey: s.serverKey.Public,
	}

	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return res, nil
		}
		return nil, common.ErrorInternal
	}

	res.Params = cryptox.Argon2Params{Memory: user.Memory, Iterations: user.Iterations, Parallelism: user.Parallelism}
	return res, nil
}

// Register creates an account. The verifier must equal the agreement of the
// server key with the submitted public key, which proves the caller holds
// the matching private key.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, fmt.Errorf("%w: invalid email", common.ErrorValidation)
	}
	if in.Params.Memory == 0 || in.Params.Iterations == 0 || in.Params.Parallelism == 0 {
		return nil, fmt.Errorf("%w: missing key derivation parameters", common.ErrorValidation)
	}
	if !s.checkVerifier(in.PublicKey, in.Verifier) {
		return nil, fmt.Errorf("%w: verifier does not match public key", common.ErrorValidation)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PublicKey:    in.PublicKey,
		Memory:       in.Params.Memory,
		Iterations:   in.Params.Iterations,
		Parallelism:  in.Params.Parallelism,
		PasswordHint: in.PasswordHint,
	}
	if err := s.repomanager.Users(s.db).Create(ctx, user); err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}
	return user, nil
}

// Login verifies the verifier against the stored public key and, on success,
// returns the account and a new TokenPair.
func (s *UserService) Login(ctx context.Context, email string, verifier []byte) (*LoginResult, error) {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}
	if !s.checkVerifier(user.PublicKey, verifier) {
		return nil, common.ErrorUnauthorized
	}

	tokens, err := s.generateTokenPair(ctx, user.ID, s.db)
	if err != nil {
		return nil, err
	}
	return &LoginResult{User: user, Tokens: tokens}, nil
}

// RefreshToken redeems a refresh token and returns a fresh TokenPair. The
// old token is deleted in the same transaction that stores the new one.
// Unknown tokens yield ErrorUnauthorized, expired ones ErrRefreshTokenExpired.
func (s *UserService) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	var pair *TokenPair
	expired := false

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		token, err := s.repomanager.RefreshTokens(tx).Consume(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return fmt.Errorf("error consuming refresh token: %w", err)
		}
		if token.Expired(time.Now()) {
			// commit the delete, the token is dead anyway
			expired = true
			return nil
		}
		pair, err = s.generateTokenPair(ctx, token.UserID, tx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if expired {
		return nil, common.ErrRefreshTokenExpired
	}
	return pair, nil
}

// PurgeExpiredTokens removes refresh tokens that can no longer be redeemed.
func (s *UserService) PurgeExpiredTokens(ctx context.Context) (int64, error) {
	return s.repomanager.RefreshTokens(s.db).DeleteExpired(ctx, time.Now())
}

// --- helpers below ---

func (s *UserService) generateAccessToken(userID string) (string, error) {
	return auth.GenerateToken(userID, s.jwtSecret, s.accessTokenValidityDuration)
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

// checkVerifier recomputes the verifier for publicKey and compares it in
// constant time.
func (s *UserService) checkVerifier(publicKey, candidate []byte) bool {
	expected, err := cryptox.SharedSecret(s.serverKey.Private, publicKey, cryptox.LabelAuthVerifier)
	if err != nil {
		return false
	}
	defer common.WipeByteArray(expected)
	return subtle.ConstantTimeCompare(expected, candidate) == 1
}

func (s *UserService) generateTokenPair(ctx context.Context, userID string, tx dbx.DBTX) (*TokenPair, error) {
	access, err := s.generateAccessToken(userID)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}
	refreshRepo := s.repomanager.RefreshTokens(tx)
	if err := refreshRepo.Create(ctx, userID, refresh, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
