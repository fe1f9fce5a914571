package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/dbx"
	"github.com/dmitrijs2005/qrpass/internal/logging"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Reconciler merges ledger batches uploaded by verifying devices into the
// canonical ledger. It is the only writer of sync state.
type Reconciler struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	batchSize   int
	timeout     time.Duration
	log         logging.Logger
	devices     *keyMutex
	now         func() time.Time
}

func NewReconciler(db *sql.DB, m repomanager.RepositoryManager, batchSize int, timeout time.Duration, log logging.Logger) *Reconciler {
	if batchSize <= 0 || batchSize > common.SyncBatchSize {
		batchSize = common.SyncBatchSize
	}
	return &Reconciler{
		db:          db,
		repomanager: m,
		batchSize:   batchSize,
		timeout:     timeout,
		log:         log,
		devices:     newKeyMutex(),
		now:         time.Now,
	}
}

// BatchSize is the largest batch Reconcile accepts.
func (r *Reconciler) BatchSize() int { return r.batchSize }

// Reconcile applies batch and returns one result per entry, in order.
// Batches from one device run one at a time. A failing entry yields an
// error result and never stops the rest. Re-running a batch changes nothing.
func (r *Reconciler) Reconcile(ctx context.Context, deviceID string, batch []*models.ScanEntry) (results []models.SyncResult, err error) {
	if len(batch) > r.batchSize {
		return nil, fmt.Errorf("%w: %d entries, limit %d", common.ErrBatchTooLarge, len(batch), r.batchSize)
	}

	ctx, span := tracer().Start(ctx, "Reconciler.Reconcile",
		trace.WithAttributes(attribute.String("device.id", deviceID), attribute.Int("batch.size", len(batch))))
	defer func() { endSpan(span, err) }()

	unlock := r.devices.Lock(deviceID)
	defer unlock()

	settled := r.settled(ctx, batch)

	results = make([]models.SyncResult, 0, len(batch))
	counts := make(map[models.SyncOutcome]int)
	for _, e := range batch {
		res := r.reconcileOne(ctx, e, settled)
		counts[res.Outcome]++
		results = append(results, res)
	}

	r.log.Info(ctx, "batch reconciled", "device_id", deviceID, "entries", len(batch),
		"synced", counts[models.OutcomeSynced], "duplicates", counts[models.OutcomeDuplicate], "errors", counts[models.OutcomeError])
	return results, nil
}

// settled finds keys that are already fully synced, with their first
// verifier, so retransmitted batches skip the per-entry transactions.
// Failures only cost the shortcut.
func (r *Reconciler) settled(ctx context.Context, batch []*models.ScanEntry) map[models.ScanKey]string {
	keys := make([]models.ScanKey, 0, len(batch))
	for _, e := range batch {
		if e != nil {
			keys = append(keys, e.Key())
		}
	}

	ctx, cancel := dbx.WithTimeout(ctx, r.timeout)
	defer cancel()

	settled, err := r.repomanager.Ledger(r.db).SettledAmong(ctx, keys)
	if err != nil {
		r.log.Warn(ctx, "settled lookup failed", "error", err)
		return nil
	}
	return settled
}

func errorResult(id string, err error) models.SyncResult {
	return models.SyncResult{EntryID: id, Outcome: models.OutcomeError, Detail: err.Error()}
}

// warnCrossDevice flags a duplicate whose first synced copy came from
// another verifier.
func (r *Reconciler) warnCrossDevice(ctx context.Context, e *models.ScanEntry, firstVerifier string) {
	if firstVerifier == e.VerifierID {
		return
	}
	r.log.Warn(ctx, "cross-device replay", "subject_id", e.SubjectID,
		"verifier_id", e.VerifierID, "first_verifier_id", firstVerifier, "device_time", e.DeviceTime)
}

func (r *Reconciler) reconcileOne(ctx context.Context, e *models.ScanEntry, settled map[models.ScanKey]string) models.SyncResult {
	if e == nil {
		return errorResult("", fmt.Errorf("%w: empty entry", common.ErrorValidation))
	}
	if e.ID == "" {
		return errorResult("", fmt.Errorf("%w: entry id is required", common.ErrorValidation))
	}
	if err := e.Validate(); err != nil {
		return errorResult(e.ID, err)
	}

	key := e.Key()
	if first, ok := settled[key]; ok {
		r.warnCrossDevice(ctx, e, first)
		return models.SyncResult{EntryID: e.ID, Outcome: models.OutcomeDuplicate}
	}

	txCtx, cancel := dbx.WithTimeout(ctx, r.timeout)
	defer cancel()

	now := r.now()
	outcome := models.OutcomeSynced
	var pendingID string

	err := dbx.WithTx(txCtx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := r.repomanager.Ledger(tx)
		if err := repo.LockKey(ctx, key); err != nil {
			return err
		}
		rows, err := repo.FindByKey(ctx, key)
		if err != nil {
			return err
		}

		var synced *models.ScanEntry
		for _, x := range rows {
			switch {
			case x.SyncState == models.SyncPending && pendingID == "":
				pendingID = x.ID
			case x.SyncState == models.SyncSynced && synced == nil:
				synced = x
			}
		}

		if pendingID != "" {
			if err := repo.MarkSynced(ctx, pendingID, now); err != nil {
				if errors.Is(err, common.ErrorNotFound) {
					outcome = models.OutcomeDuplicate
					return nil
				}
				return err
			}
			return nil
		}

		if synced != nil {
			outcome = models.OutcomeDuplicate
			r.warnCrossDevice(ctx, e, synced.VerifierID)
			return nil
		}

		fresh := *e
		fresh.ID = uuid.NewString()
		fresh.SyncState = models.SyncSynced
		fresh.SyncError = ""
		fresh.ServerTime = &now
		fresh.ValidatedOffline = true
		fresh.CreatedAt = now
		inserted, err := repo.Insert(ctx, &fresh)
		if err != nil {
			return err
		}
		if !inserted {
			outcome = models.OutcomeDuplicate
		}
		return nil
	})
	if err != nil {
		if pendingID != "" {
			r.flagError(ctx, pendingID, err)
		}
		r.log.Warn(ctx, "entry not reconciled", "entry_id", e.ID, "subject_id", e.SubjectID, "error", err)
		return errorResult(e.ID, fmt.Errorf("%w: %w", common.ErrSyncConflict, err))
	}

	return models.SyncResult{EntryID: e.ID, Outcome: outcome}
}

// flagError marks a pending entry as failed. It gets its own deadline since
// the transaction's may already be spent.
func (r *Reconciler) flagError(ctx context.Context, id string, cause error) {
	ctx, cancel := dbx.WithTimeout(ctx, r.timeout)
	defer cancel()

	if err := r.repomanager.Ledger(r.db).MarkError(ctx, id, cause.Error()); err != nil {
		r.log.Error(ctx, "could not flag ledger entry", "entry_id", id, "error", err)
	}
}
