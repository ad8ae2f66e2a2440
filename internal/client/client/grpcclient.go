package client

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/api"
	"github.com/dmitrijs2005/gophvault/internal/client/models"
	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/cryptox"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// callTimeout bounds every unary call that has no deadline of its own.
const callTimeout = 15 * time.Second

// GRPCClient implements Client over the VaultService. It is stateless with
// respect to tokens: the session owns them and passes the access token in.
type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      api.VaultServiceClient
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

// timeoutInterceptor applies callTimeout when the caller set no deadline.
func timeoutInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

func NewGophVaultClientService(endpointURL string) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	if err := c.InitGRPCClient(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) InitGRPCClient() error {
	conn, err := grpc.NewClient(s.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(timeoutInterceptor),
	)
	if err != nil {
		return err
	}
	s.conn = conn
	s.client = api.NewVaultServiceClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp, err := s.client.Ping(ctx, &api.PingRequest{})
	if err != nil {
		return s.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrNetwork
	}
	return nil
}

func (s *GRPCClient) PreLogin(ctx context.Context, email string) (*PreLoginResult, error) {
	resp, err := s.client.PreLogin(ctx, &api.PreLoginRequest{Email: email})
	if err != nil {
		return nil, s.mapError(err)
	}
	serverKey, err := hex.DecodeString(resp.ServerPublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode server public key: %w", err)
	}
	return &PreLoginResult{
		Params: cryptox.Argon2Params{
			Memory:      resp.Memory,
			Iterations:  resp.Iterations,
			Parallelism: resp.Parallelism,
		},
		ServerPublicKey: serverKey,
	}, nil
}

func (s *GRPCClient) Register(ctx context.Context, in RegisterInput) (string, error) {
	req := &api.RegisterRequest{
		Email:        in.Email,
		PublicKey:    hex.EncodeToString(in.PublicKey),
		Memory:       in.Params.Memory,
		Iterations:   in.Params.Iterations,
		Parallelism:  in.Params.Parallelism,
		Verifier:     in.Verifier,
		PasswordHint: in.PasswordHint,
	}
	resp, err := s.client.Register(ctx, req)
	if err != nil {
		return "", s.mapError(err)
	}
	return resp.UserID, nil
}

func (s *GRPCClient) Login(ctx context.Context, email string, verifier []byte) (*LoginResult, error) {
	resp, err := s.client.Login(ctx, &api.LoginRequest{Email: email, Verifier: verifier})
	if err != nil {
		return nil, s.mapError(err)
	}
	pub, err := hex.DecodeString(resp.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode public key: %w", err)
	}
	return &LoginResult{
		UserID:    resp.UserID,
		PublicKey: pub,
		Tokens:    TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken},
	}, nil
}

func (s *GRPCClient) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	resp, err := s.client.RefreshToken(ctx, &api.RefreshTokenRequest{RefreshToken: refreshToken})
	if err != nil {
		err = s.mapError(err)
		// a rejected refresh token can never become valid again
		if errors.Is(err, ErrTokenExpired) {
			return nil, ErrAuth
		}
		return nil, err
	}
	return &TokenPair{AccessToken: resp.AccessToken, RefreshToken: resp.RefreshToken}, nil
}

func (s *GRPCClient) AllRecords(ctx context.Context, accessToken string) (*Snapshot, error) {
	resp, err := s.client.AllRecords(withAccessToken(ctx, accessToken), &api.AllRecordsRequest{})
	if err != nil {
		return nil, s.mapError(err)
	}
	return &Snapshot{Records: fromWire(resp.Records), ServerTime: resp.ServerTime}, nil
}

func (s *GRPCClient) SyncSince(ctx context.Context, accessToken string, since int64) (*Delta, error) {
	resp, err := s.client.SyncSince(withAccessToken(ctx, accessToken), &api.SyncSinceRequest{Since: since})
	if err != nil {
		return nil, s.mapError(err)
	}
	return &Delta{LiveIDs: resp.LiveIDs, Changed: fromWire(resp.Changed), ServerTime: resp.ServerTime}, nil
}

func (s *GRPCClient) InsertRecord(ctx context.Context, accessToken string, r *models.EncryptedVaultRecord) (int64, error) {
	resp, err := s.client.InsertRecord(withAccessToken(ctx, accessToken), &api.InsertRecordRequest{Record: toWire(r)})
	if err != nil {
		return 0, s.mapError(err)
	}
	return resp.UpdatedAt, nil
}

func (s *GRPCClient) UpdateRecord(ctx context.Context, accessToken string, r *models.EncryptedVaultRecord) (int64, error) {
	resp, err := s.client.UpdateRecord(withAccessToken(ctx, accessToken), &api.UpdateRecordRequest{Record: toWire(r)})
	if err != nil {
		return 0, s.mapError(err)
	}
	return resp.UpdatedAt, nil
}

func (s *GRPCClient) DeleteRecord(ctx context.Context, accessToken string, id string) error {
	_, err := s.client.DeleteRecord(withAccessToken(ctx, accessToken), &api.DeleteRecordRequest{ID: id})
	if err != nil {
		return s.mapError(err)
	}
	return nil
}

// mapError turns gRPC statuses into the client's error taxonomy.
func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	switch st.Code() {
	case codes.Unauthenticated:
		if st.Message() == common.ErrTokenExpired.Error() {
			return ErrTokenExpired
		}
		return ErrAuth
	case codes.PermissionDenied:
		return ErrAuth
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%w: %s", ErrNetwork, st.Message())
	case codes.Canceled:
		return context.Canceled
	default:
		return &ApiError{Code: st.Code().String(), Message: st.Message()}
	}
}

func toWire(r *models.EncryptedVaultRecord) *api.Record {
	return &api.Record{
		ID:         r.ID,
		OwnerID:    r.OwnerID,
		Ciphertext: r.Ciphertext,
		Tag:        r.Tag,
		Nonce:      r.Nonce,
		UpdatedAt:  r.UpdatedAt,
	}
}

func fromWire(in []*api.Record) []*models.EncryptedVaultRecord {
	out := make([]*models.EncryptedVaultRecord, 0, len(in))
	for _, r := range in {
		if r == nil {
			continue
		}
		out = append(out, &models.EncryptedVaultRecord{
			ID:         r.ID,
			OwnerID:    r.OwnerID,
			Ciphertext: r.Ciphertext,
			Tag:        r.Tag,
			Nonce:      r.Nonce,
			UpdatedAt:  r.UpdatedAt,
		})
	}
	return out
}
