package grpc

import (
	"context"
	"encoding/hex"
	"errors"

	"github.com/dmitrijs2005/gophvault/internal/api"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// toStatus maps service errors to gRPC status codes. Unexpected errors are
// logged and reported as Internal without details.
func (s *GRPCServer) toStatus(ctx context.Context, method string, err error) error {
	switch {
	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, common.ErrRefreshTokenExpired.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.Error(codes.Unauthenticated, "unauthorized")
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		s.logger.Error(ctx, "request failed", "method", method, "error", err.Error())
		return status.Error(codes.Internal, "internal error")
	}
}

func (s *GRPCServer) Ping(ctx context.Context, req *api.PingRequest) (*api.PingResponse, error) {

	return &api.PingResponse{Status: "OK"}, nil

}

func (s *GRPCServer) PreLogin(ctx context.Context, req *api.PreLoginRequest) (*api.PreLoginResponse, error) {

	res, err := s.users.PreLogin(ctx, req.Email)
	if err != nil {
		return nil, s.toStatus(ctx, "PreLogin", err)
	}

	return &api.PreLoginResponse{
		Memory:          res.Params.Memory,
		Iterations:      res.Params.Iterations,
		Parallelism:     res.Params.Parallelism,
		ServerPublicKey: hex.EncodeToString(res.ServerPublicKey),
	}, nil
}

func (s *GRPCServer) Register(ctx context.Context, req *api.RegisterRequest) (*api.RegisterResponse, error) {

	s.logger.Info(ctx, "Registration request")

	pub, err := hex.DecodeString(req.PublicKey)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, "malformed public key")
	}

	user, err := s.users.Register(ctx, services.RegisterInput{
		Email:     req.Email,
		PublicKey: pub,
		Params: cryptox.Argon2Params{
			Memory:      req.Memory,
			Iterations:  req.Iterations,
			Parallelism: req.Parallelism,
		},
		Verifier:     req.Verifier,
		PasswordHint: req.PasswordHint,
	})
	if err != nil {
		return nil, s.toStatus(ctx, "Register", err)
	}

	s.logger.Info(ctx, "Registered", "user_id", user.ID)
	return &api.RegisterResponse{UserID: user.ID}, nil
}

func (s *GRPCServer) Login(ctx context.Context, req *api.LoginRequest) (*api.LoginResponse, error) {

	res, err := s.users.Login(ctx, req.Email, req.Verifier)
	if err != nil {
		return nil, s.toStatus(ctx, "Login", err)
	}

	return &api.LoginResponse{
		UserID:       res.User.ID,
		PublicKey:    hex.EncodeToString(res.User.PublicKey),
		AccessToken:  res.Tokens.AccessToken,
		RefreshToken: res.Tokens.RefreshToken,
	}, nil
}

func (s *GRPCServer) RefreshToken(ctx context.Context, req *api.RefreshTokenRequest) (*api.RefreshTokenResponse, error) {

	if req.RefreshToken == "" {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	pair, err := s.users.RefreshToken(ctx, req.RefreshToken)
	if err != nil {
		return nil, s.toStatus(ctx, "RefreshToken", err)
	}

	return &api.RefreshTokenResponse{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}, nil
}

func (s *GRPCServer) AllRecords(ctx context.Context, req *api.AllRecordsRequest) (*api.AllRecordsResponse, error) {

	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	snap, err := s.ciphers.All(ctx, userID)
	if err != nil {
		return nil, s.toStatus(ctx, "AllRecords", err)
	}

	return &api.AllRecordsResponse{Records: toRecords(snap.Ciphers), ServerTime: snap.ServerTime}, nil
}

func (s *GRPCServer) SyncSince(ctx context.Context, req *api.SyncSinceRequest) (*api.SyncSinceResponse, error) {

	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	d, err := s.ciphers.Since(ctx, userID, req.Since)
	if err != nil {
		return nil, s.toStatus(ctx, "SyncSince", err)
	}

	return &api.SyncSinceResponse{LiveIDs: d.LiveIDs, Changed: toRecords(d.Changed), ServerTime: d.ServerTime}, nil
}

func (s *GRPCServer) InsertRecord(ctx context.Context, req *api.InsertRecordRequest) (*api.InsertRecordResponse, error) {

	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	ts, err := s.ciphers.Insert(ctx, fromRecord(req.Record, userID))
	if err != nil {
		return nil, s.toStatus(ctx, "InsertRecord", err)
	}

	return &api.InsertRecordResponse{UpdatedAt: ts}, nil
}

func (s *GRPCServer) UpdateRecord(ctx context.Context, req *api.UpdateRecordRequest) (*api.UpdateRecordResponse, error) {

	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	ts, err := s.ciphers.Update(ctx, fromRecord(req.Record, userID))
	if err != nil {
		return nil, s.toStatus(ctx, "UpdateRecord", err)
	}

	return &api.UpdateRecordResponse{UpdatedAt: ts}, nil
}

func (s *GRPCServer) DeleteRecord(ctx context.Context, req *api.DeleteRecordRequest) (*api.DeleteRecordResponse, error) {

	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	if err := s.ciphers.Delete(ctx, userID, req.ID); err != nil {
		return nil, s.toStatus(ctx, "DeleteRecord", err)
	}

	return &api.DeleteRecordResponse{}, nil
}

// fromRecord converts a wire record. The owner always comes from the token,
// never from the request body. A nil record becomes nil and fails validation.
func fromRecord(r *api.Record, userID string) *models.Cipher {
	if r == nil {
		return nil
	}
	return &models.Cipher{
		ID:         r.ID,
		UserID:     userID,
		Ciphertext: r.Ciphertext,
		Tag:        r.Tag,
		Nonce:      r.Nonce,
	}
}

func toRecords(list []*models.Cipher) []*api.Record {
	out := make([]*api.Record, 0, len(list))
	for _, c := range list {
		out = append(out, &api.Record{
			ID:         c.ID,
			OwnerID:    c.UserID,
			Ciphertext: c.Ciphertext,
			Tag:        c.Tag,
			Nonce:      c.Nonce,
			UpdatedAt:  c.UpdatedAt,
		})
	}
	return out
}
