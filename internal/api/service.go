package api

import (
	"context"

	"google.golang.org/grpc"
)

const ServiceName = "gophvault.VaultService"

// Full method names, used by interceptors to tell public calls from
// authenticated ones.
const (
	MethodPing         = "/" + ServiceName + "/Ping"
	MethodPreLogin     = "/" + ServiceName + "/PreLogin"
	MethodRegister     = "/" + ServiceName + "/Register"
	MethodLogin        = "/" + ServiceName + "/Login"
	MethodRefreshToken = "/" + ServiceName + "/RefreshToken"
	MethodAllRecords   = "/" + ServiceName + "/AllRecords"
	MethodSyncSince    = "/" + ServiceName + "/SyncSince"
	MethodInsertRecord = "/" + ServiceName + "/InsertRecord"
	MethodUpdateRecord = "/" + ServiceName + "/UpdateRecord"
	MethodDeleteRecord = "/" + ServiceName + "/DeleteRecord"
)

// VaultServiceServer is implemented by the server's gRPC handler.
type VaultServiceServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	PreLogin(context.Context, *PreLoginRequest) (*PreLoginResponse, error)
	Register(context.Context, *RegisterRequest) (*RegisterResponse, error)
	Login(context.Context, *LoginRequest) (*LoginResponse, error)
	RefreshToken(context.Context, *RefreshTokenRequest) (*RefreshTokenResponse, error)
	AllRecords(context.Context, *AllRecordsRequest) (*AllRecordsResponse, error)
	SyncSince(context.Context, *SyncSinceRequest) (*SyncSinceResponse, error)
	InsertRecord(context.Context, *InsertRecordRequest) (*InsertRecordResponse, error)
	UpdateRecord(context.Context, *UpdateRecordRequest) (*UpdateRecordResponse, error)
	DeleteRecord(context.Context, *DeleteRecordRequest) (*DeleteRecordResponse, error)
}

// unary adapts a typed server method to grpc.MethodHandler.
func unary[Req, Resp any](fullMethod string, call func(VaultServiceServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(VaultServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(VaultServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var VaultServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VaultServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: unary(MethodPing, VaultServiceServer.Ping)},
		{MethodName: "PreLogin", Handler: unary(MethodPreLogin, VaultServiceServer.PreLogin)},
		{MethodName: "Register", Handler: unary(MethodRegister, VaultServiceServer.Register)},
		{MethodName: "Login", Handler: unary(MethodLogin, VaultServiceServer.Login)},
		{MethodName: "RefreshToken", Handler: unary(MethodRefreshToken, VaultServiceServer.RefreshToken)},
		{MethodName: "AllRecords", Handler: unary(MethodAllRecords, VaultServiceServer.AllRecords)},
		{MethodName: "SyncSince", Handler: unary(MethodSyncSince, VaultServiceServer.SyncSince)},
		{MethodName: "InsertRecord", Handler: unary(MethodInsertRecord, VaultServiceServer.InsertRecord)},
		{MethodName: "UpdateRecord", Handler: unary(MethodUpdateRecord, VaultServiceServer.UpdateRecord)},
		{MethodName: "DeleteRecord", Handler: unary(MethodDeleteRecord, VaultServiceServer.DeleteRecord)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "gophvault/vault.json",
}

// RegisterVaultServiceServer registers srv on s.
func RegisterVaultServiceServer(s grpc.ServiceRegistrar, srv VaultServiceServer) {
	s.RegisterService(&VaultServiceDesc, srv)
}

// VaultServiceClient is the typed client stub.
type VaultServiceClient interface {
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	PreLogin(ctx context.Context, in *PreLoginRequest, opts ...grpc.CallOption) (*PreLoginResponse, error)
	Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error)
	Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error)
	RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*RefreshTokenResponse, error)
	AllRecords(ctx context.Context, in *AllRecordsRequest, opts ...grpc.CallOption) (*AllRecordsResponse, error)
	SyncSince(ctx context.Context, in *SyncSinceRequest, opts ...grpc.CallOption) (*SyncSinceResponse, error)
	InsertRecord(ctx context.Context, in *InsertRecordRequest, opts ...grpc.CallOption) (*InsertRecordResponse, error)
	UpdateRecord(ctx context.Context, in *UpdateRecordRequest, opts ...grpc.CallOption) (*UpdateRecordResponse, error)
	DeleteRecord(ctx context.Context, in *DeleteRecordRequest, opts ...grpc.CallOption) (*DeleteRecordResponse, error)
}

type vaultServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewVaultServiceClient returns a stub that always uses the JSON codec.
func NewVaultServiceClient(cc grpc.ClientConnInterface) VaultServiceClient {
	return &vaultServiceClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *vaultServiceClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, MethodPing, in, opts)
}

func (c *vaultServiceClient) PreLogin(ctx context.Context, in *PreLoginRequest, opts ...grpc.CallOption) (*PreLoginResponse, error) {
	return invoke[PreLoginResponse](ctx, c.cc, MethodPreLogin, in, opts)
}

func (c *vaultServiceClient) Register(ctx context.Context, in *RegisterRequest, opts ...grpc.CallOption) (*RegisterResponse, error) {
	return invoke[RegisterResponse](ctx, c.cc, MethodRegister, in, opts)
}

func (c *vaultServiceClient) Login(ctx context.Context, in *LoginRequest, opts ...grpc.CallOption) (*LoginResponse, error) {
	return invoke[LoginResponse](ctx, c.cc, MethodLogin, in, opts)
}

func (c *vaultServiceClient) RefreshToken(ctx context.Context, in *RefreshTokenRequest, opts ...grpc.CallOption) (*RefreshTokenResponse, error) {
	return invoke[RefreshTokenResponse](ctx, c.cc, MethodRefreshToken, in, opts)
}

func (c *vaultServiceClient) AllRecords(ctx context.Context, in *AllRecordsRequest, opts ...grpc.CallOption) (*AllRecordsResponse, error) {
	return invoke[AllRecordsResponse](ctx, c.cc, MethodAllRecords, in, opts)
}

func (c *vaultServiceClient) SyncSince(ctx context.Context, in *SyncSinceRequest, opts ...grpc.CallOption) (*SyncSinceResponse, error) {
	return invoke[SyncSinceResponse](ctx, c.cc, MethodSyncSince, in, opts)
}

func (c *vaultServiceClient) InsertRecord(ctx context.Context, in *InsertRecordRequest, opts ...grpc.CallOption) (*InsertRecordResponse, error) {
	return invoke[InsertRecordResponse](ctx, c.cc, MethodInsertRecord, in, opts)
}

func (c *vaultServiceClient) UpdateRecord(ctx context.Context, in *UpdateRecordRequest, opts ...grpc.CallOption) (*UpdateRecordResponse, error) {
	return invoke[UpdateRecordResponse](ctx, c.cc, MethodUpdateRecord, in, opts)
}

func (c *vaultServiceClient) DeleteRecord(ctx context.Context, in *DeleteRecordRequest, opts ...grpc.CallOption) (*DeleteRecordResponse, error) {
	return invoke[DeleteRecordResponse](ctx, c.cc, MethodDeleteRecord, in, opts)
}
