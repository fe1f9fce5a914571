package grpc

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/qr"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
	"github.com/dmitrijs2005/qrpass/internal/server/services"
	"github.com/dmitrijs2005/qrpass/internal/wire"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// DeviceIDHeaderName optionally identifies the physical device behind a
// credential. Sync batches are serialized per device.
const DeviceIDHeaderName = "x-device-id"

func (s *GRPCServer) Ping(ctx context.Context, req *wire.PingRequest) (*wire.PingResponse, error) {
	return &wire.PingResponse{
		Status:     "OK",
		WindowMs:   qr.WindowSize.Milliseconds(),
		ServerTime: s.now().UnixMilli(),
	}, nil
}

func (s *GRPCServer) Validate(ctx context.Context, req *wire.ValidateRequest) (*wire.ValidateResponse, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	verifier := claims.PrincipalID

	if s.failures != nil {
		d, err := s.failures.Blocked(ctx, verifier)
		if err != nil {
			s.logger.Warn(ctx, "failure limiter unavailable", "error", err)
		} else if !d.Allowed {
			return nil, status.Errorf(codes.ResourceExhausted, "too many failed validations, retry after %s", d.RetryAfter.Round(time.Second))
		}
	}

	res, err := s.tokens.ValidateAndRecord(ctx, services.ScanRequest{
		Payload:      req.Payload,
		VerifierID:   verifier,
		VerifierName: req.VerifierName,
		ClientIP:     clientIP(ctx),
		UserAgent:    userAgent(ctx),
		Location:     req.Location,
	})
	if err != nil {
		s.logger.Error(ctx, "validate failed", "verifier_id", verifier, "error", err)
		return nil, mapError(err)
	}

	if res.Outcome.Reason == qr.ReasonBadAuthenticator && s.failures != nil {
		if d, err := s.failures.Check(ctx, verifier); err != nil {
			s.logger.Warn(ctx, "failure limiter unavailable", "error", err)
		} else if !d.Allowed {
			s.logger.Warn(ctx, "verifier locked out", "verifier_id", verifier, "retry_after", d.RetryAfter)
		}
	}

	return &wire.ValidateResponse{
		Valid:       res.Outcome.Valid,
		Accepted:    res.Accepted(),
		Reason:      res.Reason(),
		Status:      string(res.Status),
		EntryID:     res.EntryID,
		SubjectID:   res.Outcome.PrincipalID,
		SubjectName: res.SubjectName,
		WindowID:    res.Outcome.Window.ID,
		DeviceTime:  res.Outcome.DeviceTime,
	}, nil
}

func (s *GRPCServer) SyncLedger(ctx context.Context, req *wire.SyncLedgerRequest) (*wire.SyncLedgerResponse, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	if len(req.Entries) > s.sync.BatchSize() {
		return nil, status.Errorf(codes.InvalidArgument, "batch of %d entries exceeds %d", len(req.Entries), s.sync.BatchSize())
	}

	batch := make([]*models.ScanEntry, len(req.Entries))
	for i, e := range req.Entries {
		batch[i] = entryFromWire(e, claims.PrincipalID)
	}

	deviceID := claims.PrincipalID
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(DeviceIDHeaderName); len(v) > 0 && v[0] != "" {
			deviceID = claims.PrincipalID + "/" + v[0]
		}
	}

	results, err := s.sync.Reconcile(ctx, deviceID, batch)
	if err != nil {
		s.logger.Error(ctx, "sync failed", "device_id", deviceID, "error", err)
		return nil, mapError(err)
	}

	out := &wire.SyncLedgerResponse{Results: make([]wire.SyncResult, len(results))}
	for i, r := range results {
		out.Results[i] = wire.SyncResult{EntryID: r.EntryID, Outcome: string(r.Outcome), Detail: r.Detail}
	}
	return out, nil
}

func (s *GRPCServer) SecretCache(ctx context.Context, req *wire.SecretCacheRequest) (*wire.SecretCacheResponse, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	cache, err := s.caches.Publish(ctx, claims.PrincipalID)
	if err != nil {
		s.logger.Error(ctx, "secret cache failed", "actor", claims.PrincipalID, "error", err)
		return nil, mapError(err)
	}
	return &wire.SecretCacheResponse{
		URL:       cache.URL,
		Key:       cache.Key,
		Nonce:     cache.Nonce,
		Count:     cache.Count,
		ExpiresAt: cache.ExpiresAt.UnixMilli(),
	}, nil
}

func (s *GRPCServer) RotateSecret(ctx context.Context, req *wire.RotateSecretRequest) (*wire.RotateSecretResponse, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	if req.PrincipalID == "" {
		return nil, status.Error(codes.InvalidArgument, "principal id is required")
	}

	sec, err := s.secrets.Rotate(ctx, req.PrincipalID, claims.PrincipalID)
	if err != nil {
		s.logger.Error(ctx, "rotation failed", "principal_id", req.PrincipalID, "error", err)
		return nil, mapError(err)
	}
	common.WipeByteArray(sec.Key)

	return &wire.RotateSecretResponse{
		PrincipalID: sec.PrincipalID,
		SecretID:    sec.ID,
		ExpiresAt:   sec.ExpiresAt.UnixMilli(),
	}, nil
}

func (s *GRPCServer) RevokeSecret(ctx context.Context, req *wire.RevokeSecretRequest) (*wire.RevokeSecretResponse, error) {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}
	if req.PrincipalID == "" {
		return nil, status.Error(codes.InvalidArgument, "principal id is required")
	}

	if err := s.secrets.Revoke(ctx, req.PrincipalID, claims.PrincipalID, req.Suspend); err != nil {
		s.logger.Error(ctx, "revocation failed", "principal_id", req.PrincipalID, "error", err)
		return nil, mapError(err)
	}
	return &wire.RevokeSecretResponse{PrincipalID: req.PrincipalID}, nil
}

// entryFromWire converts an uploaded entry. The verifier is always the
// authenticated principal.
func entryFromWire(e *wire.ScanEntry, verifier string) *models.ScanEntry {
	if e == nil {
		return nil
	}
	m := &models.ScanEntry{
		ID:           e.ID,
		SubjectID:    e.SubjectID,
		SubjectName:  e.SubjectName,
		VerifierID:   verifier,
		VerifierName: e.VerifierName,
		TokenPayload: e.TokenPayload,
		DeviceTime:   e.DeviceTime,
		Valid:        e.Valid,
		Reason:       e.Reason,
		ClientIP:     e.ClientIP,
		UserAgent:    e.UserAgent,
		Location:     e.Location,
	}
	if e.CreatedAt > 0 {
		m.CreatedAt = time.UnixMilli(e.CreatedAt).UTC()
	}
	return m
}

func clientIP(ctx context.Context) string {
	p, ok := peer.FromContext(ctx)
	if !ok || p.Addr == nil {
		return ""
	}
	host, _, err := net.SplitHostPort(p.Addr.String())
	if err != nil {
		return p.Addr.String()
	}
	return host
}

func userAgent(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if v := md.Get("user-agent"); len(v) > 0 {
		return v[0]
	}
	return ""
}

// mapError converts service errors to gRPC status errors. Store timeouts
// are reported as Unavailable so devices retry.
func mapError(err error) error {
	switch {
	case errors.Is(err, common.ErrorValidation),
		errors.Is(err, common.ErrBatchTooLarge),
		errors.Is(err, common.ErrMalformedPayload):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	case errors.Is(err, common.ErrorRateLimited):
		return status.Error(codes.ResourceExhausted, "rate limited")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return status.Error(codes.Unavailable, "store unavailable, retry")
	default:
		return status.Error(codes.Internal, "internal error")
	}
}
