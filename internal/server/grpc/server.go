// Package grpc serves the Verifier API used by verifying devices.
package grpc

import (
	"context"
	"net"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/logging"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
	"github.com/dmitrijs2005/qrpass/internal/server/limiter"
	"github.com/dmitrijs2005/qrpass/internal/server/services"
	"github.com/dmitrijs2005/qrpass/internal/wire"
	"google.golang.org/grpc"
)

type tokenSvc interface {
	ValidateAndRecord(ctx context.Context, req services.ScanRequest) (services.ScanResult, error)
}

type syncSvc interface {
	Reconcile(ctx context.Context, deviceID string, batch []*models.ScanEntry) ([]models.SyncResult, error)
	BatchSize() int
}

type secretSvc interface {
	Rotate(ctx context.Context, principalID, actor string) (*models.Secret, error)
	Revoke(ctx context.Context, principalID, actor string, suspend bool) error
}

type cacheSvc interface {
	Publish(ctx context.Context, actor string) (*services.SecretCache, error)
}

type GRPCServer struct {
	wire.UnimplementedVerifierServer
	address   string
	tokens    tokenSvc
	sync      syncSvc
	secrets   secretSvc
	caches    cacheSvc
	failures  limiter.Limiter
	logger    logging.Logger
	jwtSecret []byte
	now       func() time.Time
}

// NewGRPCServer wires the Verifier service. failures counts
// BAD_AUTHENTICATOR outcomes per verifier and may be nil.
func NewGRPCServer(a string, l logging.Logger, ts *services.TokenService, rc *services.Reconciler,
	ss *services.SecretService, cs *services.SecretCacheService, failures limiter.Limiter, secretKey string) (*GRPCServer, error) {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		tokens:    ts,
		sync:      rc,
		secrets:   ss,
		caches:    cs,
		failures:  failures,
		jwtSecret: []byte(secretKey),
		now:       time.Now,
	}, nil
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	wire.RegisterVerifierServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
