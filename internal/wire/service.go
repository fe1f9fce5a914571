package wire

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const ServiceName = "qrpass.v1.Verifier"

const (
	PingMethod         = "/" + ServiceName + "/Ping"
	ValidateMethod     = "/" + ServiceName + "/Validate"
	SyncLedgerMethod   = "/" + ServiceName + "/SyncLedger"
	SecretCacheMethod  = "/" + ServiceName + "/SecretCache"
	RotateSecretMethod = "/" + ServiceName + "/RotateSecret"
	RevokeSecretMethod = "/" + ServiceName + "/RevokeSecret"
)

// VerifierServer is the server API for the Verifier service.
type VerifierServer interface {
	Ping(context.Context, *PingRequest) (*PingResponse, error)
	Validate(context.Context, *ValidateRequest) (*ValidateResponse, error)
	SyncLedger(context.Context, *SyncLedgerRequest) (*SyncLedgerResponse, error)
	SecretCache(context.Context, *SecretCacheRequest) (*SecretCacheResponse, error)
	RotateSecret(context.Context, *RotateSecretRequest) (*RotateSecretResponse, error)
	RevokeSecret(context.Context, *RevokeSecretRequest) (*RevokeSecretResponse, error)
}

// UnimplementedVerifierServer can be embedded to satisfy VerifierServer.
type UnimplementedVerifierServer struct{}

func (UnimplementedVerifierServer) Ping(context.Context, *PingRequest) (*PingResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Ping not implemented")
}
func (UnimplementedVerifierServer) Validate(context.Context, *ValidateRequest) (*ValidateResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Validate not implemented")
}
func (UnimplementedVerifierServer) SyncLedger(context.Context, *SyncLedgerRequest) (*SyncLedgerResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SyncLedger not implemented")
}
func (UnimplementedVerifierServer) SecretCache(context.Context, *SecretCacheRequest) (*SecretCacheResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method SecretCache not implemented")
}
func (UnimplementedVerifierServer) RotateSecret(context.Context, *RotateSecretRequest) (*RotateSecretResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RotateSecret not implemented")
}
func (UnimplementedVerifierServer) RevokeSecret(context.Context, *RevokeSecretRequest) (*RevokeSecretResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method RevokeSecret not implemented")
}

func unaryHandler[Req, Resp any](method string, call func(VerifierServer, context.Context, *Req) (*Resp, error)) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(VerifierServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(VerifierServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// VerifierServiceDesc describes the Verifier service for grpc.Server.
var VerifierServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*VerifierServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Ping", Handler: unaryHandler(PingMethod, VerifierServer.Ping)},
		{MethodName: "Validate", Handler: unaryHandler(ValidateMethod, VerifierServer.Validate)},
		{MethodName: "SyncLedger", Handler: unaryHandler(SyncLedgerMethod, VerifierServer.SyncLedger)},
		{MethodName: "SecretCache", Handler: unaryHandler(SecretCacheMethod, VerifierServer.SecretCache)},
		{MethodName: "RotateSecret", Handler: unaryHandler(RotateSecretMethod, VerifierServer.RotateSecret)},
		{MethodName: "RevokeSecret", Handler: unaryHandler(RevokeSecretMethod, VerifierServer.RevokeSecret)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "qrpass/v1/verifier",
}

func RegisterVerifierServer(s grpc.ServiceRegistrar, srv VerifierServer) {
	s.RegisterService(&VerifierServiceDesc, srv)
}

// VerifierClient is the client API for the Verifier service.
type VerifierClient interface {
	Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error)
	Validate(ctx context.Context, in *ValidateRequest, opts ...grpc.CallOption) (*ValidateResponse, error)
	SyncLedger(ctx context.Context, in *SyncLedgerRequest, opts ...grpc.CallOption) (*SyncLedgerResponse, error)
	SecretCache(ctx context.Context, in *SecretCacheRequest, opts ...grpc.CallOption) (*SecretCacheResponse, error)
	RotateSecret(ctx context.Context, in *RotateSecretRequest, opts ...grpc.CallOption) (*RotateSecretResponse, error)
	RevokeSecret(ctx context.Context, in *RevokeSecretRequest, opts ...grpc.CallOption) (*RevokeSecretResponse, error)
}

type verifierClient struct {
	cc grpc.ClientConnInterface
}

func NewVerifierClient(cc grpc.ClientConnInterface) VerifierClient {
	return &verifierClient{cc: cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *verifierClient) Ping(ctx context.Context, in *PingRequest, opts ...grpc.CallOption) (*PingResponse, error) {
	return invoke[PingResponse](ctx, c.cc, PingMethod, in, opts)
}

func (c *verifierClient) Validate(ctx context.Context, in *ValidateRequest, opts ...grpc.CallOption) (*ValidateResponse, error) {
	return invoke[ValidateResponse](ctx, c.cc, ValidateMethod, in, opts)
}

func (c *verifierClient) SyncLedger(ctx context.Context, in *SyncLedgerRequest, opts ...grpc.CallOption) (*SyncLedgerResponse, error) {
	return invoke[SyncLedgerResponse](ctx, c.cc, SyncLedgerMethod, in, opts)
}

func (c *verifierClient) SecretCache(ctx context.Context, in *SecretCacheRequest, opts ...grpc.CallOption) (*SecretCacheResponse, error) {
	return invoke[SecretCacheResponse](ctx, c.cc, SecretCacheMethod, in, opts)
}

func (c *verifierClient) RotateSecret(ctx context.Context, in *RotateSecretRequest, opts ...grpc.CallOption) (*RotateSecretResponse, error) {
	return invoke[RotateSecretResponse](ctx, c.cc, RotateSecretMethod, in, opts)
}

func (c *verifierClient) RevokeSecret(ctx context.Context, in *RevokeSecretRequest, opts ...grpc.CallOption) (*RevokeSecretResponse, error) {
	return invoke[RevokeSecretResponse](ctx, c.cc, RevokeSecretMethod, in, opts)
}
