package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/dbx"
	"github.com/dmitrijs2005/qrpass/internal/logging"
	"github.com/dmitrijs2005/qrpass/internal/server/models"
	"github.com/dmitrijs2005/qrpass/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// LedgerService is the replay guard over the canonical scan ledger.
type LedgerService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	timeout     time.Duration
	log         logging.Logger
	now         func() time.Time
}

func NewLedgerService(db *sql.DB, m repomanager.RepositoryManager, timeout time.Duration, log logging.Logger) *LedgerService {
	return &LedgerService{db: db, repomanager: m, timeout: timeout, log: log, now: time.Now}
}

// Record stores e as a pending entry. Exactly one of any number of
// concurrent calls with the same key is accepted while that key is pending;
// the rest get RecordDuplicate.
func (s *LedgerService) Record(ctx context.Context, e *models.ScanEntry) (models.RecordStatus, error) {
	if err := e.Validate(); err != nil {
		return "", err
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	e.SyncState = models.SyncPending
	e.ServerTime = nil

	ctx, cancel := dbx.WithTimeout(ctx, s.timeout)
	defer cancel()

	ok, err := s.repomanager.Ledger(s.db).Insert(ctx, e)
	if err != nil {
		return "", fmt.Errorf("error recording scan: %w", err)
	}
	if !ok {
		s.log.Info(ctx, "duplicate scan", "subject_id", e.SubjectID, "verifier_id", e.VerifierID, "device_time", e.DeviceTime)
		return models.RecordDuplicate, nil
	}
	return models.RecordAccepted, nil
}

// PendingOlderThan lists up to limit entries still pending after age.
func (s *LedgerService) PendingOlderThan(ctx context.Context, age time.Duration, limit int) ([]*models.ScanEntry, error) {
	ctx, cancel := dbx.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repomanager.Ledger(s.db).PendingOlderThan(ctx, s.now().Add(-age), limit)
}

// Backlog counts entries pending for longer than age and returns the
// creation time of the oldest one.
func (s *LedgerService) Backlog(ctx context.Context, age time.Duration) (int64, *time.Time, error) {
	ctx, cancel := dbx.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.repomanager.Ledger(s.db).BacklogStats(ctx, s.now().Add(-age))
}
