// Package grpc exposes the vault service over gRPC: request handlers, the
// access token interceptor and per-peer rate limiting of the public methods.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/gophvault/internal/api"
	"github.com/dmitrijs2005/gophvault/internal/logging"
	"github.com/dmitrijs2005/gophvault/internal/server/models"
	"github.com/dmitrijs2005/gophvault/internal/server/services"
	"google.golang.org/grpc"
)

// UserService is the account side the handlers depend on.
type UserService interface {
	PreLogin(ctx context.Context, email string) (*services.PreLoginResult, error)
	Register(ctx context.Context, in services.RegisterInput) (*models.User, error)
	Login(ctx context.Context, email string, verifier []byte) (*services.LoginResult, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

// CipherService is the record side the handlers depend on.
type CipherService interface {
	All(ctx context.Context, userID string) (*services.Snapshot, error)
	Since(ctx context.Context, userID string, since int64) (*services.Delta, error)
	Insert(ctx context.Context, c *models.Cipher) (int64, error)
	Update(ctx context.Context, c *models.Cipher) (int64, error)
	Delete(ctx context.Context, userID, id string) error
}

type GRPCServer struct {
	address   string
	users     UserService
	ciphers   CipherService
	logger    logging.Logger
	jwtSecret []byte
	limiter   *peerRateLimiter
}

func NewGRPCServer(a string, l logging.Logger, us UserService, cs CipherService, secretKey string, rps float64, burst int) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		users:     us,
		ciphers:   cs,
		jwtSecret: []byte(secretKey),
		limiter:   newPeerRateLimiter(rps, burst),
	}
}

// Run listens on the configured address and serves until ctx is cancelled.
func (s *GRPCServer) Run(ctx context.Context) error {

	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.serve(ctx, listen)
}

func (s *GRPCServer) serve(ctx context.Context, listen net.Listener) error {

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.rateLimitInterceptor, s.accessTokenInterceptor))

	api.RegisterVaultServiceServer(srv, s)

	go s.limiter.cleanup(ctx)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
