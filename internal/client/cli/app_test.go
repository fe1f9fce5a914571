package cli

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/qrpass/internal/client/client"
	"github.com/dmitrijs2005/qrpass/internal/client/config"
	"github.com/dmitrijs2005/qrpass/internal/client/models"
	"github.com/dmitrijs2005/qrpass/internal/client/services"
	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/logging"
)

var scanNow = time.UnixMilli(1_700_000_010_000)

type fakeScanner struct {
	mu sync.Mutex

	online  atomic.Bool
	pingErr error
	pings   int
	syncs   int

	scanRes *services.ScanResult
	scanErr error
	syncRes *services.SyncSummary
	syncErr error
	n       int
	err     error
	status  *services.Status
	closed  bool
}

func (f *fakeScanner) Scan(context.Context, string) (*services.ScanResult, error) {
	return f.scanRes, f.scanErr
}

func (f *fakeScanner) Sync(context.Context) (*services.SyncSummary, error) {
	f.mu.Lock()
	f.syncs++
	f.mu.Unlock()
	return f.syncRes, f.syncErr
}

func (f *fakeScanner) RefreshCache(context.Context) (int, error) { return f.n, f.err }

func (f *fakeScanner) Status(context.Context) (*services.Status, error) { return f.status, f.err }

func (f *fakeScanner) Ping(context.Context) error {
	f.mu.Lock()
	f.pings++
	f.mu.Unlock()
	f.online.Store(f.pingErr == nil)
	return f.pingErr
}

func (f *fakeScanner) Online() bool     { return f.online.Load() }
func (f *fakeScanner) SetOnline(o bool) { f.online.Store(o) }

func (f *fakeScanner) Close() error {
	f.closed = true
	return nil
}

func (f *fakeScanner) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings, f.syncs
}

func newTestApp(fs *fakeScanner) *App {
	return &App{config: &config.Config{}, scanner: fs, log: logging.Nop()}
}

func TestScanCommand(t *testing.T) {
	tests := []struct {
		name string
		res  *services.ScanResult
		err  error
		want string
	}{
		{"accepted online", &services.ScanResult{Valid: true, Accepted: true, SubjectID: "STU0007", SubjectName: "Ann"},
			nil, "ACCEPTED Ann (STU0007) [online]"},
		{"duplicate offline", &services.ScanResult{Valid: true, Offline: true, SubjectID: "STU0007", Reason: services.ReasonDuplicate},
			nil, "ALREADY SCANNED STU0007 [offline]"},
		{"rejected", &services.ScanResult{Reason: "OUT_OF_WINDOW", SubjectID: "STU0007"},
			nil, "REJECTED STU0007: OUT_OF_WINDOW [online]"},
		{"ledger full", nil, common.ErrLedgerFull, "Offline ledger is full, sync before scanning more"},
		{"unauthorized", nil, client.ErrUnauthorized, "Device credential rejected"},
		{"other", nil, errors.New("boom"), "Scan failed: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := capturePrint(t)
			a := newTestApp(&fakeScanner{scanRes: tt.res, scanErr: tt.err})

			err := a.Scan(context.Background(), "payload")
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, []string{tt.want}, *out)
		})
	}
}

func TestSyncRefreshStatusCommands(t *testing.T) {
	out := capturePrint(t)
	fs := &fakeScanner{
		syncRes: &services.SyncSummary{Synced: 3, Duplicates: 1},
		n:       12,
		status: &services.Status{
			Online:        true,
			VerifierID:    "gate-1",
			Ledger:        models.LedgerStats{Pending: 2, Synced: 5, Errored: 1},
			CachedSecrets: 12,
		},
	}
	a := newTestApp(fs)
	ctx := context.Background()

	require.NoError(t, a.Sync(ctx))
	require.NoError(t, a.Refresh(ctx))
	require.NoError(t, a.Status(ctx))

	assert.Equal(t, []string{
		"Synced: 3, duplicates: 1, errors: 0",
		"Cached secrets for 12 principals",
		"Verifier: gate-1 (online)",
		"Pending: 2, synced: 5, errors: 1",
		"Cached secrets: 12, refreshed: never",
		"Last sync: never",
	}, *out)

	*out = nil
	fs.syncErr = client.ErrUnavailable
	fs.err = errors.New("db closed")
	assert.Error(t, a.Sync(ctx))
	assert.Error(t, a.Refresh(ctx))
	assert.Error(t, a.Status(ctx))
	assert.Len(t, *out, 3)
}

func TestMode(t *testing.T) {
	fs := &fakeScanner{}
	a := newTestApp(fs)
	assert.Equal(t, "(offline)", a.mode())
	fs.SetOnline(true)
	assert.Equal(t, "(online)", a.mode())
}

func TestOnlineWatcherAndSyncLoop(t *testing.T) {
	fs := &fakeScanner{syncRes: &services.SyncSummary{}}
	a := newTestApp(fs)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	go func() { a.StartOnlineStatusWatcher(ctx, 5*time.Millisecond); done <- struct{}{} }()
	go func() { a.StartSyncLoop(ctx, 5*time.Millisecond); done <- struct{}{} }()

	assert.Eventually(t, func() bool {
		pings, syncs := fs.counts()
		return pings > 0 && syncs > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	<-done

	assert.True(t, fs.Online())
}

func TestSyncLoop_SkipsWhileOffline(t *testing.T) {
	fs := &fakeScanner{}
	a := newTestApp(fs)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	a.StartSyncLoop(ctx, 5*time.Millisecond)

	_, syncs := fs.counts()
	assert.Zero(t, syncs)

	a.StartOnlineStatusWatcher(context.Background(), 0)
	a.StartSyncLoop(context.Background(), 0)
}

func testConfig(t *testing.T) *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.DatabaseDSN = ":memory:"
	c.OnlineCheckInterval = 0
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"pid": "gate-1"}).SignedString([]byte("k"))
	require.NoError(t, err)
	c.AccessToken = token
	return c
}

func TestNewApp(t *testing.T) {
	a, err := NewApp(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.scanner.Close() })

	st, err := a.scanner.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "gate-1", st.VerifierID)
	assert.False(t, st.Online)
}

func TestNewApp_Errors(t *testing.T) {
	c := testConfig(t)
	c.Location = "canteen"
	_, err := NewApp(context.Background(), c)
	assert.ErrorIs(t, err, common.ErrorValidation)

	c = testConfig(t)
	c.LogBackend = "nope"
	_, err = NewApp(context.Background(), c)
	assert.Error(t, err)

	c = testConfig(t)
	c.AccessToken = "not-a-jwt"
	_, err = NewApp(context.Background(), c)
	assert.ErrorIs(t, err, common.ErrInvalidToken)

	old := readPassword
	t.Cleanup(func() { readPassword = old })
	readPassword = func(int) ([]byte, error) { return nil, errors.New("no tty") }
	c = testConfig(t)
	c.AccessToken = ""
	_, err = NewApp(context.Background(), c)
	assert.ErrorContains(t, err, "error reading credential")
}
