package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/server/auth"
	"github.com/dmitrijs2005/qrpass/internal/wire"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const claimsKey ctxKey = "claims"

// methodPermissions lists the capability each method requires. Methods
// missing here are public.
var methodPermissions = map[string]string{
	wire.ValidateMethod:     auth.PermQRValidate,
	wire.SyncLedgerMethod:   auth.PermScansSync,
	wire.SecretCacheMethod:  auth.PermSecretsCache,
	wire.RotateSecretMethod: auth.PermSecretsRotate,
	wire.RevokeSecretMethod: auth.PermSecretsRevoke,
}

// ClaimsFromContext returns the device credential accepted by the
// interceptor.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	perm, ok := methodPermissions[info.FullMethod]
	if !ok {
		return handler(ctx, req)
	}

	var accessToken string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AccessTokenHeaderName)
		if len(values) > 0 {
			accessToken = values[0]
		}
	}
	if len(accessToken) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	claims, err := auth.ParseToken(accessToken, s.jwtSecret)
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, "token expired")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	if !auth.Allowed(claims.Role, perm) {
		s.logger.Warn(ctx, "permission denied", "principal_id", claims.PrincipalID, "role", claims.Role, "method", info.FullMethod)
		return nil, status.Errorf(codes.PermissionDenied, "%s required", perm)
	}

	ctx = context.WithValue(ctx, claimsKey, claims)
	return handler(ctx, req)
}
