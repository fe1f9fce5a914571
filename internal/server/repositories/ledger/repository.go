// Package ledger stores the canonical scan ledger. Replay protection lives in
// the storage layer: the key (subject, payload, device time) is unique among
// pending entries only.
package ledger

import (
	"context"
	"time"

	"github.com/dmitrijs2005/qrpass/internal/server/models"
)

type Repository interface {
	// Insert adds e and reports whether it was stored. A pending entry whose
	// key is already pending is not stored and yields false.
	Insert(ctx context.Context, e *models.ScanEntry) (bool, error)

	// LockKey serializes writers of one key until the transaction ends.
	LockKey(ctx context.Context, key models.ScanKey) error
	FindByKey(ctx context.Context, key models.ScanKey) ([]*models.ScanEntry, error)

	// MarkSynced flips a pending entry to synced. common.ErrorNotFound means
	// the entry is gone or no longer pending.
	MarkSynced(ctx context.Context, id string, at time.Time) error
	MarkError(ctx context.Context, id string, detail string) error

	PendingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.ScanEntry, error)
	BacklogStats(ctx context.Context, cutoff time.Time) (int64, *time.Time, error)

	// SettledAmong returns the keys that have a synced entry and no pending
	// one, mapped to the verifier of the first synced entry.
	SettledAmong(ctx context.Context, keys []models.ScanKey) (map[models.ScanKey]string, error)
}
