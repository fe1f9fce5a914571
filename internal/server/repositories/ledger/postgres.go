package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/dbx"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
	"github.com/lib/pq"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const entryColumns = `id, subject_id, subject_name, verifier_id, verifier_name, token_payload, device_time,
	server_time, valid, validated_offline, reason, sync_state, sync_error, client_ip, user_agent, location, created_at`

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*models.ScanEntry, error) {
	e := &models.ScanEntry{}
	var serverTime sql.NullTime
	var reason, syncErr, clientIP, userAgent, location sql.NullString
	var state string

	if err := row.Scan(&e.ID, &e.SubjectID, &e.SubjectName, &e.VerifierID, &e.VerifierName, &e.TokenPayload,
		&e.DeviceTime, &serverTime, &e.Valid, &e.ValidatedOffline, &reason, &state, &syncErr,
		&clientIP, &userAgent, &location, &e.CreatedAt); err != nil {
		return nil, err
	}

	if serverTime.Valid {
		t := serverTime.Time
		e.ServerTime = &t
	}
	e.SyncState = models.SyncState(state)
	e.Reason = reason.String
	e.SyncError = syncErr.String
	e.ClientIP = clientIP.String
	e.UserAgent = userAgent.String
	e.Location = location.String
	return e, nil
}

func (r *PostgresRepository) queryEntries(ctx context.Context, query string, args ...any) ([]*models.ScanEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.ScanEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, e *models.ScanEntry) (bool, error) {
	query :=
		`INSERT INTO scan_ledger (` + entryColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 ON CONFLICT (subject_id, token_payload, device_time) WHERE sync_state = 'pending' DO NOTHING
		 RETURNING id`

	var id string
	err := r.db.QueryRowContext(ctx, query,
		e.ID, e.SubjectID, e.SubjectName, e.VerifierID, e.VerifierName, e.TokenPayload, e.DeviceTime,
		nullTime(e.ServerTime), e.Valid, e.ValidatedOffline, nullString(e.Reason), string(e.SyncState),
		nullString(e.SyncError), nullString(e.ClientIP), nullString(e.UserAgent), nullString(e.Location),
		e.CreatedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("db error: %w", err)
	}
	return true, nil
}

func (r *PostgresRepository) LockKey(ctx context.Context, key models.ScanKey) error {
	if _, err := r.db.ExecContext(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindByKey(ctx context.Context, key models.ScanKey) ([]*models.ScanEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM scan_ledger
		 WHERE subject_id = $1 AND token_payload = $2 AND device_time = $3
		 ORDER BY created_at
		 FOR UPDATE`

	return r.queryEntries(ctx, query, key.SubjectID, key.TokenPayload, key.DeviceTime)
}

func (r *PostgresRepository) MarkSynced(ctx context.Context, id string, at time.Time) error {
	query :=
		`UPDATE scan_ledger SET sync_state = 'synced', server_time = $2, sync_error = NULL
		 WHERE id = $1 AND sync_state = 'pending'`

	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) MarkError(ctx context.Context, id string, detail string) error {
	query :=
		`UPDATE scan_ledger SET sync_state = 'error', sync_error = $2
		 WHERE id = $1 AND sync_state = 'pending'`

	res, err := r.db.ExecContext(ctx, query, id, truncate(detail, 1000))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) PendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.ScanEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM scan_ledger
		 WHERE sync_state = 'pending' AND created_at < $1
		 ORDER BY created_at
		 LIMIT $2`

	return r.queryEntries(ctx, query, cutoff, limit)
}

func (r *PostgresRepository) BacklogStats(ctx context.Context, cutoff time.Time) (int64, *time.Time, error) {
	query :=
		`SELECT count(*), min(created_at) FROM scan_ledger
		 WHERE sync_state = 'pending' AND created_at < $1`

	var n int64
	var oldest sql.NullTime
	if err := r.db.QueryRowContext(ctx, query, cutoff).Scan(&n, &oldest); err != nil {
		return 0, nil, fmt.Errorf("db error: %w", err)
	}
	if !oldest.Valid {
		return n, nil, nil
	}
	t := oldest.Time
	return n, &t, nil
}

func (r *PostgresRepository) SettledAmong(ctx context.Context, keys []models.ScanKey) (map[models.ScanKey]string, error) {
	settled := make(map[models.ScanKey]string)
	if len(keys) == 0 {
		return settled, nil
	}

	subjects := make([]string, 0, len(keys))
	times := make([]int64, 0, len(keys))
	for _, k := range keys {
		subjects = append(subjects, k.SubjectID)
		times = append(times, k.DeviceTime)
	}

	query :=
		`SELECT subject_id, token_payload, device_time,
		        (array_agg(verifier_id ORDER BY server_time, created_at) FILTER (WHERE sync_state = 'synced'))[1]
		 FROM scan_ledger
		 WHERE subject_id = ANY($1) AND device_time = ANY($2)
		 GROUP BY subject_id, token_payload, device_time
		 HAVING bool_or(sync_state = 'synced') AND NOT bool_or(sync_state = 'pending')`

	rows, err := r.db.QueryContext(ctx, query, pq.Array(subjects), pq.Array(times))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	wanted := make(map[models.ScanKey]struct{}, len(keys))
	for _, k := range keys {
		wanted[k] = struct{}{}
	}

	for rows.Next() {
		var k models.ScanKey
		var verifier string
		if err := rows.Scan(&k.SubjectID, &k.TokenPayload, &k.DeviceTime, &verifier); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		// ANY on two columns matches the cross product; keep requested keys only
		if _, ok := wanted[k]; ok {
			settled[k] = verifier
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return settled, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
