package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/dbx"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/ledger"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/memory"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func outcomes(results []models.SyncResult) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.String()
	}
	return out
}

func TestReconcile_BatchWithAlreadySyncedEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	a := entry("STU0001", "pa", 1_700_000_000_000)
	b := entry("STU0002", "pb", 1_700_000_001_000)
	c := entry("STU0003", "pc", 1_700_000_002_000)

	_, err := env.reconciler.Reconcile(ctx, "scanner-1", []*models.ScanEntry{b})
	require.NoError(t, err)

	results, err := env.reconciler.Reconcile(ctx, "scanner-1", []*models.ScanEntry{a, b, c})
	require.NoError(t, err)
	assert.Equal(t, []string{"synced", "duplicate-noop", "synced"}, outcomes(results))
	assert.Equal(t, a.ID, results[0].EntryID)

	for _, e := range []*models.ScanEntry{a, b, c} {
		rows := env.rows(t, e.Key())
		require.Len(t, rows, 1, e.SubjectID)
		assert.Equal(t, models.SyncSynced, rows[0].SyncState)
		assert.True(t, rows[0].ValidatedOffline)
		assert.NotNil(t, rows[0].ServerTime)
	}
}

func TestReconcile_FlipsOnlinePendingEntry(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Now()
	env.setNow(now)

	online := entry("STU0001", "pa", 1_700_000_000_000)
	online.ID = ""
	_, err := env.ledger.Record(ctx, online)
	require.NoError(t, err)

	local := entry("STU0001", "pa", 1_700_000_000_000)
	results, err := env.reconciler.Reconcile(ctx, "scanner-1", []*models.ScanEntry{local})
	require.NoError(t, err)
	assert.Equal(t, []string{"synced"}, outcomes(results))

	rows := env.rows(t, local.Key())
	require.Len(t, rows, 1)
	assert.Equal(t, online.ID, rows[0].ID)
	assert.Equal(t, models.SyncSynced, rows[0].SyncState)
	assert.False(t, rows[0].ValidatedOffline)
	require.NotNil(t, rows[0].ServerTime)
	assert.True(t, rows[0].ServerTime.Equal(now))

	// the key is retired from the pending set
	st, err := env.ledger.Record(ctx, entry("STU0001", "pa", 1_700_000_000_000))
	require.NoError(t, err)
	assert.Equal(t, models.RecordAccepted, st)
}

func TestReconcile_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	pending := entry("STU0001", "pa", 1)
	pending.ID = ""
	_, err := env.ledger.Record(ctx, pending)
	require.NoError(t, err)

	batch := []*models.ScanEntry{entry("STU0001", "pa", 1), entry("STU0002", "pb", 2), entry("STU0003", "pc", 3)}

	_, err = env.reconciler.Reconcile(ctx, "scanner-1", batch)
	require.NoError(t, err)
	snapshot := map[string][]*models.ScanEntry{}
	for _, e := range batch {
		snapshot[e.SubjectID] = env.rows(t, e.Key())
	}

	results, err := env.reconciler.Reconcile(ctx, "scanner-1", batch)
	require.NoError(t, err)
	assert.Equal(t, []string{"duplicate-noop", "duplicate-noop", "duplicate-noop"}, outcomes(results))

	for _, e := range batch {
		assert.Empty(t, cmp.Diff(snapshot[e.SubjectID], env.rows(t, e.Key())))
	}
}

func TestReconcile_BadEntryDoesNotBlockBatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	bad := entry("STU0002", "pb", 2)
	bad.Location = "moon"
	noID := entry("STU0004", "pd", 4)
	noID.ID = ""

	results, err := env.reconciler.Reconcile(ctx, "scanner-1",
		[]*models.ScanEntry{entry("STU0001", "pa", 1), bad, entry("STU0003", "pc", 3), noID, nil})
	require.NoError(t, err)
	require.Len(t, results, 5)

	assert.Equal(t, models.OutcomeSynced, results[0].Outcome)
	assert.Equal(t, models.OutcomeError, results[1].Outcome)
	assert.True(t, strings.HasPrefix(results[1].String(), "error:"), results[1].String())
	assert.Contains(t, results[1].Detail, "unknown location")
	assert.Equal(t, models.OutcomeSynced, results[2].Outcome)
	assert.Equal(t, models.OutcomeError, results[3].Outcome)
	assert.Equal(t, models.OutcomeError, results[4].Outcome)

	assert.Empty(t, env.rows(t, bad.Key()))
}

func TestReconcile_BatchTooLarge(t *testing.T) {
	env := newTestEnv(t)

	batch := make([]*models.ScanEntry, common.SyncBatchSize+1)
	for i := range batch {
		batch[i] = entry(fmt.Sprintf("S%d", i), "p", int64(i+1))
	}

	_, err := env.reconciler.Reconcile(context.Background(), "scanner-1", batch)
	assert.ErrorIs(t, err, common.ErrBatchTooLarge)
}

func TestReconcile_CrossDeviceDuplicateWarns(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	first := entry("STU0001", "pa", 1)
	_, err := env.reconciler.Reconcile(ctx, "scanner-1", []*models.ScanEntry{first})
	require.NoError(t, err)

	// same device retransmitting is not a cross-device replay
	results, err := env.reconciler.Reconcile(ctx, "scanner-1", []*models.ScanEntry{first})
	require.NoError(t, err)
	assert.Equal(t, []string{"duplicate-noop"}, outcomes(results))
	assert.False(t, env.log.warned("cross-device replay"))

	second := entry("STU0001", "pa", 1)
	second.ID = "other-device-entry"
	second.VerifierID = "ADM002"

	results, err = env.reconciler.Reconcile(ctx, "scanner-2", []*models.ScanEntry{second})
	require.NoError(t, err)
	assert.Equal(t, []string{"duplicate-noop"}, outcomes(results))
	assert.True(t, env.log.warned("cross-device replay"))
	assert.Len(t, env.rows(t, second.Key()), 1)
}

func TestReconcile_ConcurrentDevices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	results := make([][]models.SyncResult, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e := entry("STU0001", "pa", 1)
			e.ID = fmt.Sprintf("dev-%d", i)
			res, err := env.reconciler.Reconcile(ctx, fmt.Sprintf("scanner-%d", i), []*models.ScanEntry{e})
			assert.NoError(t, err)
			results[i] = res
		}(i)
	}
	wg.Wait()

	synced := 0
	for _, r := range results {
		require.Len(t, r, 1)
		if r[0].Outcome == models.OutcomeSynced {
			synced++
		} else {
			assert.Equal(t, models.OutcomeDuplicate, r[0].Outcome)
		}
	}
	assert.Equal(t, 1, synced)
	assert.Len(t, env.rows(t, entry("STU0001", "pa", 1).Key()), 1)
}

// failingLedger fails MarkSynced for one subject.
type failingLedger struct {
	ledger.Repository
	subject string
}

func (f *failingLedger) MarkSynced(ctx context.Context, id string, at time.Time) error {
	for _, pid := range f.pendingIDs(ctx) {
		if pid == id {
			return errors.New("disk full")
		}
	}
	return f.Repository.MarkSynced(ctx, id, at)
}

func (f *failingLedger) pendingIDs(ctx context.Context) []string {
	rows, _ := f.Repository.PendingOlderThan(ctx, time.Now().Add(time.Hour), 0)
	var ids []string
	for _, r := range rows {
		if r.SubjectID == f.subject {
			ids = append(ids, r.ID)
		}
	}
	return ids
}

type failingManager struct {
	*memory.Manager
	subject string
}

func (m *failingManager) Ledger(db dbx.DBTX) ledger.Repository {
	return &failingLedger{Repository: m.Manager.Ledger(db), subject: m.subject}
}

func TestReconcile_WriteFailureFlagsPendingEntry(t *testing.T) {
	env := newTestEnvWith(t, &failingManager{Manager: memory.NewManager(), subject: "STU0002"})
	ctx := context.Background()

	for _, e := range []*models.ScanEntry{entry("STU0001", "pa", 1), entry("STU0002", "pb", 2)} {
		e.ID = ""
		_, err := env.ledger.Record(ctx, e)
		require.NoError(t, err)
	}

	results, err := env.reconciler.Reconcile(ctx, "scanner-1",
		[]*models.ScanEntry{entry("STU0001", "pa", 1), entry("STU0002", "pb", 2)})
	require.NoError(t, err)
	assert.Equal(t, []string{"synced", "error:sync conflict: disk full"}, outcomes(results))

	rows := env.rows(t, entry("STU0002", "pb", 2).Key())
	require.Len(t, rows, 1)
	assert.Equal(t, models.SyncError, rows[0].SyncState)
	assert.Equal(t, "disk full", rows[0].SyncError)
}

// stallingLedger never finishes MarkSynced before the deadline and, like a
// real store, refuses writes on an expired context.
type stallingLedger struct {
	ledger.Repository
}

func (s *stallingLedger) MarkSynced(ctx context.Context, id string, at time.Time) error {
	<-ctx.Done()
	return ctx.Err()
}

func (s *stallingLedger) MarkError(ctx context.Context, id string, detail string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Repository.MarkError(ctx, id, detail)
}

type stallingManager struct {
	*memory.Manager
}

func (m *stallingManager) Ledger(db dbx.DBTX) ledger.Repository {
	return &stallingLedger{Repository: m.Manager.Ledger(db)}
}

func TestReconcile_TimeoutStillFlagsPendingEntry(t *testing.T) {
	rm := &stallingManager{Manager: memory.NewManager()}
	env := newTestEnvWith(t, rm)
	ctx := context.Background()

	online := entry("STU0001", "pa", 1)
	online.ID = ""
	_, err := env.ledger.Record(ctx, online)
	require.NoError(t, err)

	r := NewReconciler(env.db, rm, 0, 20*time.Millisecond, env.log)
	results, err := r.Reconcile(ctx, "scanner-1", []*models.ScanEntry{entry("STU0001", "pa", 1)})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, models.OutcomeError, results[0].Outcome)
	assert.Contains(t, results[0].Detail, context.DeadlineExceeded.Error())

	rows := env.rows(t, online.Key())
	require.Len(t, rows, 1)
	assert.Equal(t, models.SyncError, rows[0].SyncState)
	assert.Contains(t, rows[0].SyncError, context.DeadlineExceeded.Error())
}
