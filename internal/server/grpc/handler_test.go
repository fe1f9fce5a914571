package grpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/qr"
	"github.com/dmitrijs2005/qrpass/internal/server/auth"
	"github.com/dmitrijs2005/qrpass/internal/server/limiter"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
	"github.com/dmitrijs2005/qrpass/internal/server/services"
	"github.com/dmitrijs2005/qrpass/internal/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// ---- fakes ----

type fakeTokens struct {
	gotReq services.ScanRequest
	res    services.ScanResult
	err    error
	calls  int
}

func (f *fakeTokens) ValidateAndRecord(ctx context.Context, req services.ScanRequest) (services.ScanResult, error) {
	f.calls++
	f.gotReq = req
	return f.res, f.err
}

type fakeSync struct {
	gotDevice string
	gotBatch  []*models.ScanEntry
	err       error
}

func (f *fakeSync) BatchSize() int { return 3 }

func (f *fakeSync) Reconcile(ctx context.Context, deviceID string, batch []*models.ScanEntry) ([]models.SyncResult, error) {
	f.gotDevice = deviceID
	f.gotBatch = batch
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.SyncResult, len(batch))
	for i, e := range batch {
		if e == nil {
			out[i] = models.SyncResult{Outcome: models.OutcomeError, Detail: "empty entry"}
			continue
		}
		out[i] = models.SyncResult{EntryID: e.ID, Outcome: models.OutcomeSynced}
	}
	return out, nil
}

type fakeSecrets struct {
	rotated   []string
	revoked   []string
	actor     string
	suspended bool
	err       error
}

func (f *fakeSecrets) Rotate(ctx context.Context, principalID, actor string) (*models.Secret, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.rotated = append(f.rotated, principalID)
	f.actor = actor
	return &models.Secret{ID: "sec-1", PrincipalID: principalID, Key: []byte{1, 2, 3},
		ExpiresAt: time.UnixMilli(1_700_000_000_000)}, nil
}

func (f *fakeSecrets) Revoke(ctx context.Context, principalID, actor string, suspend bool) error {
	if f.err != nil {
		return f.err
	}
	f.revoked = append(f.revoked, principalID)
	f.actor = actor
	f.suspended = suspend
	return nil
}

type fakeCaches struct {
	cache *services.SecretCache
	err   error
}

func (f *fakeCaches) Publish(ctx context.Context, actor string) (*services.SecretCache, error) {
	return f.cache, f.err
}

// ---- helpers ----

func newServer(tk tokenSvc, sy syncSvc, se secretSvc, ca cacheSvc, failures limiter.Limiter) *GRPCServer {
	return &GRPCServer{
		address:   "127.0.0.1:0",
		tokens:    tk,
		sync:      sy,
		secrets:   se,
		caches:    ca,
		failures:  failures,
		logger:    nopLogger{},
		jwtSecret: []byte("k"),
		now:       func() time.Time { return time.UnixMilli(1_700_000_000_000) },
	}
}

func withClaims(principal string, role auth.Role) context.Context {
	return context.WithValue(context.Background(), claimsKey, &auth.Claims{PrincipalID: principal, Role: role})
}

// ---- tests ----

func TestPing(t *testing.T) {
	s := newServer(nil, nil, nil, nil, nil)
	resp, err := s.Ping(context.Background(), &wire.PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "OK", resp.Status)
	assert.Equal(t, int64(60000), resp.WindowMs)
	assert.Equal(t, int64(1_700_000_000_000), resp.ServerTime)
}

func TestValidate_Accepted(t *testing.T) {
	tk := &fakeTokens{res: services.ScanResult{
		Outcome:     qr.Outcome{Valid: true, PrincipalID: "STU0007", DeviceTime: 1_700_000_000_000, Window: qr.Window{ID: 28333333}},
		Status:      models.RecordAccepted,
		EntryID:     "e1",
		SubjectName: "Ada",
	}}
	s := newServer(tk, nil, nil, nil, nil)

	ctx := withClaims("ADM001", auth.RoleAdmin)
	ctx = peer.NewContext(ctx, &peer.Peer{Addr: &net.TCPAddr{IP: net.ParseIP("10.1.2.3"), Port: 5555}})
	ctx = metadata.NewIncomingContext(ctx, metadata.Pairs("user-agent", "scanner/1.0"))

	resp, err := s.Validate(ctx, &wire.ValidateRequest{Payload: "abc", VerifierName: "Gate", Location: "gate"})
	require.NoError(t, err)

	assert.True(t, resp.Accepted)
	assert.Equal(t, "accepted", resp.Status)
	assert.Equal(t, int64(28333333), resp.WindowID)
	assert.Equal(t, "Ada", resp.SubjectName)
	assert.Equal(t, "ADM001", tk.gotReq.VerifierID)
	assert.Equal(t, "10.1.2.3", tk.gotReq.ClientIP)
	assert.Equal(t, "scanner/1.0", tk.gotReq.UserAgent)
	assert.Equal(t, "gate", tk.gotReq.Location)
}

func TestValidate_Duplicate(t *testing.T) {
	tk := &fakeTokens{res: services.ScanResult{
		Outcome: qr.Outcome{Valid: true, PrincipalID: "STU0007"},
		Status:  models.RecordDuplicate,
	}}
	s := newServer(tk, nil, nil, nil, nil)

	resp, err := s.Validate(withClaims("ADM001", auth.RoleAdmin), &wire.ValidateRequest{Payload: "abc"})
	require.NoError(t, err)
	assert.True(t, resp.Valid)
	assert.False(t, resp.Accepted)
	assert.Equal(t, services.ReasonDuplicate, resp.Reason)
}

func TestValidate_LocksOutAfterFailures(t *testing.T) {
	tk := &fakeTokens{res: services.ScanResult{
		Outcome: qr.Outcome{Reason: qr.ReasonBadAuthenticator, PrincipalID: "STU0007"},
		Status:  models.RecordAccepted,
	}}
	failures := limiter.NewMemoryLimiter(common.MaxFailedAttempts, common.FailedAttemptsLock, common.MaxFailedAttempts)
	s := newServer(tk, nil, nil, nil, failures)
	ctx := withClaims("ADM001", auth.RoleAdmin)

	for i := 0; i < common.MaxFailedAttempts; i++ {
		resp, err := s.Validate(ctx, &wire.ValidateRequest{Payload: fmt.Sprintf("p%d", i)})
		require.NoError(t, err)
		assert.Equal(t, "BAD_AUTHENTICATOR", resp.Reason)
	}

	_, err := s.Validate(ctx, &wire.ValidateRequest{Payload: "next"})
	require.Error(t, err)
	assert.Equal(t, codes.ResourceExhausted, status.Code(err))
	assert.Equal(t, common.MaxFailedAttempts, tk.calls)

	// another verifier is unaffected
	_, err = s.Validate(withClaims("ADM002", auth.RoleAdmin), &wire.ValidateRequest{Payload: "x"})
	require.NoError(t, err)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"timeout", fmt.Errorf("error resolving secret: %w", context.DeadlineExceeded), codes.Unavailable},
		{"validation", fmt.Errorf("%w: location", common.ErrorValidation), codes.InvalidArgument},
		{"other", errors.New("boom"), codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newServer(&fakeTokens{err: tt.err}, nil, nil, nil, nil)
			_, err := s.Validate(withClaims("ADM001", auth.RoleAdmin), &wire.ValidateRequest{Payload: "abc"})
			assert.Equal(t, tt.want, status.Code(err))
		})
	}

	s := newServer(&fakeTokens{}, nil, nil, nil, nil)
	_, err := s.Validate(context.Background(), &wire.ValidateRequest{Payload: "abc"})
	assert.Equal(t, codes.Unauthenticated, status.Code(err))
}

func TestSyncLedger(t *testing.T) {
	sy := &fakeSync{}
	s := newServer(nil, sy, nil, nil, nil)

	ctx := withClaims("ADM001", auth.RoleAdmin)
	ctx = metadata.NewIncomingContext(ctx, metadata.Pairs(DeviceIDHeaderName, "tablet-1"))

	resp, err := s.SyncLedger(ctx, &wire.SyncLedgerRequest{Entries: []*wire.ScanEntry{
		{ID: "e1", SubjectID: "STU0001", VerifierID: "spoofed", TokenPayload: "p", DeviceTime: 1, CreatedAt: 1_700_000_000_000},
		nil,
	}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, wire.SyncResult{EntryID: "e1", Outcome: "synced"}, resp.Results[0])
	assert.Equal(t, "error", resp.Results[1].Outcome)

	assert.Equal(t, "ADM001/tablet-1", sy.gotDevice)
	assert.Equal(t, "ADM001", sy.gotBatch[0].VerifierID)
	assert.Equal(t, int64(1_700_000_000_000), sy.gotBatch[0].CreatedAt.UnixMilli())
	assert.Nil(t, sy.gotBatch[1])
}

func TestSyncLedger_TooLarge(t *testing.T) {
	s := newServer(nil, &fakeSync{}, nil, nil, nil)
	entries := make([]*wire.ScanEntry, 4)
	_, err := s.SyncLedger(withClaims("ADM001", auth.RoleAdmin), &wire.SyncLedgerRequest{Entries: entries})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestSyncLedger_StoreTimeout(t *testing.T) {
	s := newServer(nil, &fakeSync{err: context.DeadlineExceeded}, nil, nil, nil)
	_, err := s.SyncLedger(withClaims("ADM001", auth.RoleAdmin), &wire.SyncLedgerRequest{})
	assert.Equal(t, codes.Unavailable, status.Code(err))
}

func TestSecretCache(t *testing.T) {
	exp := time.UnixMilli(1_700_000_900_000)
	ca := &fakeCaches{cache: &services.SecretCache{URL: "https://x", Key: []byte{9}, Nonce: []byte{8}, Count: 2, ExpiresAt: exp}}
	s := newServer(nil, nil, nil, ca, nil)

	resp, err := s.SecretCache(withClaims("ADM001", auth.RoleAdmin), &wire.SecretCacheRequest{})
	require.NoError(t, err)
	assert.Equal(t, "https://x", resp.URL)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, exp.UnixMilli(), resp.ExpiresAt)

	s = newServer(nil, nil, nil, &fakeCaches{err: errors.New("s3 down")}, nil)
	_, err = s.SecretCache(withClaims("ADM001", auth.RoleAdmin), &wire.SecretCacheRequest{})
	assert.Equal(t, codes.Internal, status.Code(err))
}

func TestRotateAndRevoke(t *testing.T) {
	se := &fakeSecrets{}
	s := newServer(nil, nil, se, nil, nil)
	ctx := withClaims("ROOT", auth.RoleSuperAdmin)

	rot, err := s.RotateSecret(ctx, &wire.RotateSecretRequest{PrincipalID: "STU0001"})
	require.NoError(t, err)
	assert.Equal(t, "sec-1", rot.SecretID)
	assert.Equal(t, []string{"STU0001"}, se.rotated)
	assert.Equal(t, "ROOT", se.actor)

	_, err = s.RevokeSecret(ctx, &wire.RevokeSecretRequest{PrincipalID: "STU0002", Suspend: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"STU0002"}, se.revoked)
	assert.True(t, se.suspended)

	_, err = s.RotateSecret(ctx, &wire.RotateSecretRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = s.RevokeSecret(ctx, &wire.RevokeSecretRequest{})
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	s = newServer(nil, nil, &fakeSecrets{err: fmt.Errorf("error loading principal: %w", common.ErrorNotFound)}, nil, nil)
	_, err = s.RotateSecret(ctx, &wire.RotateSecretRequest{PrincipalID: "nobody"})
	assert.Equal(t, codes.NotFound, status.Code(err))

	s = newServer(nil, nil, &fakeSecrets{err: fmt.Errorf("%w: suspended", common.ErrorForbidden)}, nil, nil)
	_, err = s.RotateSecret(ctx, &wire.RotateSecretRequest{PrincipalID: "STU0003"})
	assert.Equal(t, codes.PermissionDenied, status.Code(err))
}
