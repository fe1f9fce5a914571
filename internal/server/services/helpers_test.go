package services

import (
	"bytes"
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/logging"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/memory"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

var testMasterKey = bytes.Repeat([]byte{7}, 32)

// recLogger keeps warnings for assertions and drops everything else.
type recLogger struct {
	mu    sync.Mutex
	warns []string
}

func (l *recLogger) Debug(context.Context, string, ...any) {}
func (l *recLogger) Info(context.Context, string, ...any)  {}
func (l *recLogger) Error(context.Context, string, ...any) {}
func (l *recLogger) With(...any) logging.Logger            { return l }

func (l *recLogger) Warn(_ context.Context, msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

func (l *recLogger) warned(msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, w := range l.warns {
		if w == msg {
			return true
		}
	}
	return false
}

// newTxDB returns a database used only to open transactions; the memory
// repositories ignore the handle.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

type testEnv struct {
	db         *sql.DB
	rm         repomanager.RepositoryManager
	log        *recLogger
	secrets    *SecretService
	ledger     *LedgerService
	registry   *RegistryService
	tokens     *TokenService
	reconciler *Reconciler
}

func newTestEnvWith(t *testing.T, rm repomanager.RepositoryManager) *testEnv {
	t.Helper()
	db := newTxDB(t)
	log := &recLogger{}
	env := &testEnv{db: db, rm: rm, log: log}
	env.secrets = NewSecretService(db, rm, testMasterKey, time.Second, log)
	env.ledger = NewLedgerService(db, rm, time.Second, log)
	env.registry = NewRegistryService(db, rm, time.Second, log)
	env.tokens = NewTokenService(env.secrets, env.ledger, env.registry, log)
	env.reconciler = NewReconciler(db, rm, 0, time.Second, log)
	return env
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWith(t, memory.NewManager())
}

func (e *testEnv) enroll(t *testing.T, ids ...string) {
	t.Helper()
	for _, id := range ids {
		_, err := e.registry.Enroll(context.Background(), id, "Name "+id, "student")
		require.NoError(t, err)
	}
}

func (e *testEnv) rows(t *testing.T, key models.ScanKey) []*models.ScanEntry {
	t.Helper()
	rows, err := e.rm.Ledger(e.db).FindByKey(context.Background(), key)
	require.NoError(t, err)
	return rows
}

// setNow pins the clock of every service in the env.
func (e *testEnv) setNow(now time.Time) {
	clock := func() time.Time { return now }
	e.secrets.now = clock
	e.ledger.now = clock
	e.tokens.now = clock
	e.reconciler.now = clock
}
