// Package services holds the scanner's use cases: validating scanned
// payloads online or against the local secret cache, keeping the offline
// ledger and reconciling it with the server.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/qrpass/internal/client/client"
	"github.com/dmitrijs2005/qrpass/internal/client/models"
	"github.com/dmitrijs2005/qrpass/internal/client/repositories/ledger"
	"github.com/dmitrijs2005/qrpass/internal/client/repositories/metadata"
	"github.com/dmitrijs2005/qrpass/internal/client/repositories/secrets"
	"github.com/dmitrijs2005/qrpass/internal/common"
	"github.com/dmitrijs2005/qrpass/internal/logging"
	"github.com/dmitrijs2005/qrpass/internal/qr"
	"github.com/dmitrijs2005/qrpass/internal/wire"
)

// ReasonDuplicate is reported for a valid token already pending in the
// ledger.
const ReasonDuplicate = "DUPLICATE"

// Sync outcomes returned by the server.
const (
	OutcomeSynced    = "synced"
	OutcomeDuplicate = "duplicate-noop"
	OutcomeError     = "error"
)

type ScanResult struct {
	Valid       bool
	Accepted    bool
	Offline     bool
	Reason      string
	SubjectID   string
	SubjectName string
	EntryID     string
	DeviceTime  int64
}

type SyncSummary struct {
	Batches    int
	Synced     int
	Duplicates int
	Errors     int
}

type Status struct {
	Online           bool
	VerifierID       string
	Ledger           models.LedgerStats
	CachedSecrets    int64
	LastSyncAt       time.Time
	SecretsRefreshed time.Time
}

type ScannerService interface {
	Scan(ctx context.Context, payload string) (*ScanResult, error)
	Sync(ctx context.Context) (*SyncSummary, error)
	RefreshCache(ctx context.Context) (int, error)
	Status(ctx context.Context) (*Status, error)
	Ping(ctx context.Context) error
	Online() bool
	SetOnline(online bool)
	Close() error
}

type Options struct {
	VerifierID   string
	VerifierName string
	Location     string
	BatchSize    int
	// MaxPending caps the offline ledger; zero means the default cap.
	MaxPending int64
}

type scannerService struct {
	client   client.Client
	ledger   ledger.Repository
	secrets  secrets.Repository
	metadata metadata.Repository
	opts     Options
	log      logging.Logger
	now      func() time.Time

	online atomic.Bool
	syncMu sync.Mutex
}

func NewScannerService(c client.Client, db *sql.DB, opts Options, log logging.Logger) ScannerService {
	if opts.BatchSize <= 0 || opts.BatchSize > common.SyncBatchSize {
		opts.BatchSize = common.SyncBatchSize
	}
	return &scannerService{
		client:   c,
		ledger:   ledger.NewSQLiteRepository(db, opts.MaxPending),
		secrets:  secrets.NewSQLiteRepository(db),
		metadata: metadata.NewSQLiteRepository(db),
		opts:     opts,
		log:      log,
		now:      time.Now,
	}
}

func (s *scannerService) Online() bool { return s.online.Load() }

func (s *scannerService) SetOnline(online bool) {
	if s.online.Swap(online) != online {
		s.log.Info(context.Background(), "connectivity changed", "online", online)
	}
}

// Ping checks the server and updates the online flag.
func (s *scannerService) Ping(ctx context.Context) error {
	err := s.client.Ping(ctx)
	s.SetOnline(err == nil)
	return err
}

func (s *scannerService) Close() error {
	return s.client.Close()
}

// Scan validates payload on the server when online. An unreachable server
// switches the scanner offline and the payload is validated against the
// cached secrets and recorded in the local ledger.
func (s *scannerService) Scan(ctx context.Context, payload string) (*ScanResult, error) {
	if s.Online() {
		resp, err := s.client.Validate(ctx, payload, s.opts.VerifierName, s.opts.Location)
		if err == nil {
			s.mirrorOnline(ctx, payload, resp)
			return &ScanResult{
				Valid:       resp.Valid,
				Accepted:    resp.Accepted,
				Reason:      resp.Reason,
				SubjectID:   resp.SubjectID,
				SubjectName: resp.SubjectName,
				EntryID:     resp.EntryID,
				DeviceTime:  resp.DeviceTime,
			}, nil
		}
		if !errors.Is(err, client.ErrUnavailable) {
			return nil, err
		}
		s.log.Warn(ctx, "server unavailable, validating offline")
		s.SetOnline(false)
	}
	return s.scanOffline(ctx, payload)
}

// mirrorOnline copies an entry the server recorded as pending into the
// local ledger under the same key, so the next sync settles it.
func (s *scannerService) mirrorOnline(ctx context.Context, payload string, resp *wire.ValidateResponse) {
	if resp.Status != wire.StatusAccepted || resp.EntryID == "" {
		return
	}
	e := &models.ScanEntry{
		ID:           resp.EntryID,
		SubjectID:    resp.SubjectID,
		SubjectName:  resp.SubjectName,
		VerifierID:   s.opts.VerifierID,
		VerifierName: s.opts.VerifierName,
		TokenPayload: payload,
		DeviceTime:   resp.DeviceTime,
		Valid:        resp.Valid,
		Reason:       resp.Reason,
		Location:     s.opts.Location,
		CreatedAt:    s.now(),
	}
	if _, err := s.ledger.Insert(ctx, e); err != nil {
		s.log.Warn(ctx, "online scan not mirrored", "entry_id", resp.EntryID, "error", err)
	}
}

func (s *scannerService) resolveSecret(ctx context.Context, principalID string) ([]byte, error) {
	sec, err := s.secrets.Get(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if !sec.UsableAt(s.now()) {
		return nil, common.ErrNoActiveSecret
	}
	return sec.Key, nil
}

func (s *scannerService) scanOffline(ctx context.Context, payload string) (*ScanResult, error) {
	now := s.now()
	out, err := qr.Validate(ctx, payload, qr.ResolverFunc(s.resolveSecret), now)
	if err != nil {
		return nil, fmt.Errorf("error reading secret cache: %w", err)
	}

	res := &ScanResult{
		Valid:      out.Valid,
		Offline:    true,
		Reason:     string(out.Reason),
		SubjectID:  out.PrincipalID,
		DeviceTime: out.DeviceTime,
	}
	if out.Reason == qr.ReasonMalformed {
		return res, nil
	}

	if sec, err := s.secrets.Get(ctx, out.PrincipalID); err == nil {
		res.SubjectName = sec.DisplayName
	}

	e := &models.ScanEntry{
		ID:           uuid.NewString(),
		SubjectID:    out.PrincipalID,
		SubjectName:  res.SubjectName,
		VerifierID:   s.opts.VerifierID,
		VerifierName: s.opts.VerifierName,
		TokenPayload: payload,
		DeviceTime:   out.DeviceTime,
		Valid:        out.Valid,
		Reason:       string(out.Reason),
		Location:     s.opts.Location,
		CreatedAt:    now,
	}

	inserted, err := s.ledger.Insert(ctx, e)
	if err != nil {
		return nil, err
	}
	if inserted {
		res.EntryID = e.ID
		res.Accepted = out.Valid
	} else if out.Valid {
		res.Reason = ReasonDuplicate
	}
	return res, nil
}

// Sync uploads pending entries in batches until none are left. Only one
// sync runs at a time.
func (s *scannerService) Sync(ctx context.Context) (*SyncSummary, error) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()

	summary := &SyncSummary{}
	for {
		batch, err := s.ledger.Pending(ctx, s.opts.BatchSize)
		if err != nil {
			return summary, err
		}
		if len(batch) == 0 {
			break
		}

		results, err := s.client.SyncLedger(ctx, batch)
		if err != nil {
			if errors.Is(err, client.ErrUnavailable) {
				s.SetOnline(false)
			}
			return summary, fmt.Errorf("sync failed: %w", err)
		}
		summary.Batches++

		complete, err := s.applyResults(ctx, batch, results, summary)
		if err != nil {
			return summary, err
		}
		if !complete {
			s.log.Warn(ctx, "server skipped entries, retrying next sync", "batch", len(batch), "results", len(results))
			break
		}
	}

	if err := metadata.SetTime(ctx, s.metadata, metadata.KeyLastSyncAt, s.now()); err != nil {
		return summary, err
	}
	if summary.Batches > 0 {
		s.log.Info(ctx, "ledger synced", "batches", summary.Batches, "synced", summary.Synced,
			"duplicates", summary.Duplicates, "errors", summary.Errors)
	}
	return summary, nil
}

// applyResults reports false when some entry of batch got no result.
func (s *scannerService) applyResults(ctx context.Context, batch []*models.ScanEntry, results []wire.SyncResult, summary *SyncSummary) (bool, error) {
	byID := make(map[string]wire.SyncResult, len(results))
	for _, r := range results {
		byID[r.EntryID] = r
	}

	complete := true
	for _, e := range batch {
		r, ok := byID[e.ID]
		if !ok {
			complete = false
			continue
		}

		state := models.SyncSynced
		detail := ""
		switch r.Outcome {
		case OutcomeSynced:
			summary.Synced++
		case OutcomeDuplicate:
			summary.Duplicates++
		default:
			state = models.SyncError
			detail = r.Detail
			if detail == "" {
				detail = r.Outcome
			}
			summary.Errors++
			s.log.Warn(ctx, "entry rejected by server", "entry_id", e.ID, "detail", detail)
		}

		err := s.ledger.ApplyResult(ctx, e.ID, state, detail)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return false, err
		}
	}
	return complete, nil
}

func (s *scannerService) Status(ctx context.Context) (*Status, error) {
	stats, err := s.ledger.Stats(ctx)
	if err != nil {
		return nil, err
	}
	cached, err := s.secrets.Count(ctx)
	if err != nil {
		return nil, err
	}
	lastSync, err := metadata.GetTime(ctx, s.metadata, metadata.KeyLastSyncAt)
	if err != nil {
		return nil, err
	}
	refreshed, err := metadata.GetTime(ctx, s.metadata, metadata.KeySecretsRefreshed)
	if err != nil {
		return nil, err
	}
	return &Status{
		Online:           s.Online(),
		VerifierID:       s.opts.VerifierID,
		Ledger:           stats,
		CachedSecrets:    cached,
		LastSyncAt:       lastSync,
		SecretsRefreshed: refreshed,
	}, nil
}
