package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/qrpass/internal/client/models"
	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/wire"
)

// DeviceIDHeaderName must match the header read by the verifier service.
const DeviceIDHeaderName = "x-device-id"

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	client      wire.VerifierClient
	accessToken string
	deviceID    string
	timeout     time.Duration
}

func withHeaders(ctx context.Context, token, deviceID string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AccessTokenHeaderName, token)
	if deviceID != "" {
		md.Set(DeviceIDHeaderName, deviceID)
	}
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *GRPCClient) headersInterceptor(
	ctx context.Context,
	method string,
	req, reply interface{},
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	ctx = withHeaders(ctx, c.accessToken, c.deviceID)
	return invoker(ctx, method, req, reply, cc, opts...)
}

// NewGRPCClient prepares a lazy connection to endpointURL. A positive
// timeout bounds each call.
func NewGRPCClient(endpointURL, accessToken, deviceID string, timeout time.Duration) (*GRPCClient, error) {
	c := &GRPCClient{
		endpointURL: endpointURL,
		accessToken: accessToken,
		deviceID:    deviceID,
		timeout:     timeout,
	}

	conn, err := grpc.NewClient(c.endpointURL,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.headersInterceptor))
	if err != nil {
		return nil, err
	}
	c.conn = conn
	c.client = wire.NewVerifierClient(conn)
	return c, nil
}

func (c *GRPCClient) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *GRPCClient) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, c.timeout)
}

func (c *GRPCClient) Ping(ctx context.Context) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.client.Ping(ctx, &wire.PingRequest{})
	if err != nil {
		return c.mapError(err)
	}
	if resp.Status != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (c *GRPCClient) Validate(ctx context.Context, payload, verifierName, location string) (*wire.ValidateResponse, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.client.Validate(ctx, &wire.ValidateRequest{
		Payload:      payload,
		VerifierName: verifierName,
		Location:     location,
	})
	if err != nil {
		return nil, c.mapError(err)
	}
	return resp, nil
}

func toWire(e *models.ScanEntry) *wire.ScanEntry {
	return &wire.ScanEntry{
		ID:           e.ID,
		SubjectID:    e.SubjectID,
		SubjectName:  e.SubjectName,
		VerifierID:   e.VerifierID,
		VerifierName: e.VerifierName,
		TokenPayload: e.TokenPayload,
		DeviceTime:   e.DeviceTime,
		Valid:        e.Valid,
		Reason:       e.Reason,
		Location:     e.Location,
		CreatedAt:    e.CreatedAt.UnixMilli(),
	}
}

func (c *GRPCClient) SyncLedger(ctx context.Context, entries []*models.ScanEntry) ([]wire.SyncResult, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	req := &wire.SyncLedgerRequest{Entries: make([]*wire.ScanEntry, 0, len(entries))}
	for _, e := range entries {
		req.Entries = append(req.Entries, toWire(e))
	}

	resp, err := c.client.SyncLedger(ctx, req)
	if err != nil {
		return nil, c.mapError(err)
	}
	return resp.Results, nil
}

func (c *GRPCClient) SecretCache(ctx context.Context) (*wire.SecretCacheResponse, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.client.SecretCache(ctx, &wire.SecretCacheRequest{})
	if err != nil {
		return nil, c.mapError(err)
	}
	return resp, nil
}

func (c *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded:
		return ErrUnavailable
	case codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", common.ErrorRateLimited, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", common.ErrorValidation, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
