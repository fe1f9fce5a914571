package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/client/models"
	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/dbx"
)

type SQLiteRepository struct {
	db         dbx.DBTX
	maxPending int64
}

// NewSQLiteRepository caps pending entries at maxPending; zero means
// common.MaxOfflineScanEntries.
func NewSQLiteRepository(db dbx.DBTX, maxPending int64) *SQLiteRepository {
	if maxPending <= 0 {
		maxPending = common.MaxOfflineScanEntries
	}
	return &SQLiteRepository{db: db, maxPending: maxPending}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (r *SQLiteRepository) Insert(ctx context.Context, e *models.ScanEntry) (bool, error) {
	query := `INSERT OR IGNORE INTO scan_entries (id, subject_id, subject_name, verifier_id, verifier_name,
			token_payload, device_time, valid, reason, location, sync_state, created_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'pending', ?
		WHERE (SELECT count(*) FROM scan_entries WHERE sync_state = 'pending') < ?`

	res, err := r.db.ExecContext(ctx, query,
		e.ID, e.SubjectID, e.SubjectName, e.VerifierID, e.VerifierName,
		e.TokenPayload, e.DeviceTime, boolInt(e.Valid), e.Reason, e.Location,
		e.CreatedAt.UnixMilli(), r.maxPending)
	if err != nil {
		return false, fmt.Errorf("failed to insert scan entry: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 1 {
		e.SyncState = models.SyncPending
		return true, nil
	}

	var pending int64
	if err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM scan_entries WHERE sync_state = 'pending'`).Scan(&pending); err != nil {
		return false, fmt.Errorf("failed to count pending entries: %w", err)
	}
	if pending >= r.maxPending {
		return false, common.ErrLedgerFull
	}
	return false, nil
}

func (r *SQLiteRepository) Pending(ctx context.Context, limit int) ([]*models.ScanEntry, error) {
	if limit <= 0 {
		limit = common.SyncBatchSize
	}
	query := `SELECT id, subject_id, subject_name, verifier_id, verifier_name, token_payload,
			device_time, valid, reason, location, sync_state, sync_error, created_at
		FROM scan_entries WHERE sync_state = 'pending'
		ORDER BY created_at, id LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending entries: %w", err)
	}
	defer rows.Close()

	var result []*models.ScanEntry
	for rows.Next() {
		e := &models.ScanEntry{}
		var valid int
		var createdAt int64
		var state string
		if err := rows.Scan(&e.ID, &e.SubjectID, &e.SubjectName, &e.VerifierID, &e.VerifierName, &e.TokenPayload,
			&e.DeviceTime, &valid, &e.Reason, &e.Location, &state, &e.SyncError, &createdAt); err != nil {
			return nil, err
		}
		e.Valid = valid == 1
		e.SyncState = models.SyncState(state)
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) ApplyResult(ctx context.Context, id string, state models.SyncState, detail string) error {
	if state == models.SyncPending {
		return fmt.Errorf("%w: cannot move entry back to pending", common.ErrorValidation)
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE scan_entries SET sync_state = ?, sync_error = ? WHERE id = ? AND sync_state = 'pending'`,
		string(state), detail, id)
	if err != nil {
		return fmt.Errorf("failed to update scan entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *SQLiteRepository) Stats(ctx context.Context) (models.LedgerStats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT sync_state, count(*) FROM scan_entries GROUP BY sync_state`)
	if err != nil {
		return models.LedgerStats{}, fmt.Errorf("failed to count entries: %w", err)
	}
	defer rows.Close()

	var s models.LedgerStats
	for rows.Next() {
		var state string
		var n int64
		if err := rows.Scan(&state, &n); err != nil {
			return models.LedgerStats{}, err
		}
		switch models.SyncState(state) {
		case models.SyncPending:
			s.Pending = n
		case models.SyncSynced:
			s.Synced = n
		case models.SyncError:
			s.Errored = n
		}
	}
	return s, rows.Err()
}
