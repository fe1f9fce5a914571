package wire

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

type echoServer struct {
	UnimplementedVerifierServer
	gotSync *SyncLedgerRequest
}

func (e *echoServer) Ping(ctx context.Context, in *PingRequest) (*PingResponse, error) {
	return &PingResponse{Status: "OK", WindowMs: 60000}, nil
}

func (e *echoServer) SyncLedger(ctx context.Context, in *SyncLedgerRequest) (*SyncLedgerResponse, error) {
	e.gotSync = in
	out := &SyncLedgerResponse{}
	for _, x := range in.Entries {
		out.Results = append(out.Results, SyncResult{EntryID: x.ID, Outcome: "synced"})
	}
	return out, nil
}

func dial(t *testing.T, srv VerifierServer) VerifierClient {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	s := grpc.NewServer()
	RegisterVerifierServer(s, srv)
	go func() { _ = s.Serve(lis) }()
	t.Cleanup(s.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return NewVerifierClient(conn)
}

func TestVerifier_RoundTrip(t *testing.T) {
	srv := &echoServer{}
	c := dial(t, srv)
	ctx := context.Background()

	pong, err := c.Ping(ctx, &PingRequest{})
	require.NoError(t, err)
	assert.Equal(t, "OK", pong.Status)
	assert.Equal(t, int64(60000), pong.WindowMs)

	resp, err := c.SyncLedger(ctx, &SyncLedgerRequest{Entries: []*ScanEntry{
		{ID: "e1", SubjectID: "STU0001", TokenPayload: "p", DeviceTime: 1},
		{ID: "e2", SubjectID: "STU0002", TokenPayload: "q", DeviceTime: 2},
	}})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "e2", resp.Results[1].EntryID)
	assert.Equal(t, "STU0002", srv.gotSync.Entries[1].SubjectID)
}

func TestVerifier_Unimplemented(t *testing.T) {
	c := dial(t, &echoServer{})

	_, err := c.RotateSecret(context.Background(), &RotateSecretRequest{PrincipalID: "STU0001"})
	require.Error(t, err)
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestCodec(t *testing.T) {
	c := jsonCodec{}
	assert.Equal(t, CodecName, c.Name())

	b, err := c.Marshal(&SecretCacheResponse{URL: "u", Key: []byte{1, 2}, Count: 1})
	require.NoError(t, err)

	var got SecretCacheResponse
	require.NoError(t, c.Unmarshal(b, &got))
	assert.Equal(t, []byte{1, 2}, got.Key)

	assert.Error(t, c.Unmarshal([]byte("{"), &got))
}
