// Package ledger stores the scanner's offline scan entries in SQLite.
package ledger

import (
	"context"

	"github.com/dmitrijs2005/qrpass/internal/client/models"
)

type Repository interface {
	// Insert stores a pending entry. It returns false when an entry with
	// the same key is already pending and common.ErrLedgerFull when the
	// pending cap is reached.
	Insert(ctx context.Context, e *models.ScanEntry) (bool, error)
	// Pending returns up to limit pending entries, oldest first.
	Pending(ctx context.Context, limit int) ([]*models.ScanEntry, error)
	// ApplyResult moves a pending entry to synced or error.
	ApplyResult(ctx context.Context, id string, state models.SyncState, detail string) error
	Stats(ctx context.Context) (models.LedgerStats, error)
}
