// Package secrets caches principal secrets on the scanner for offline
// validation.
package secrets

import (
	"context"

	"github.com/dmitrijs2005/qrpass/internal/client/models"
)

type Repository interface {
	// ReplaceAll swaps the whole cache for snapshot.
	ReplaceAll(ctx context.Context, snapshot []models.CachedSecret) error
	// Get returns common.ErrorNotFound for unknown principals.
	Get(ctx context.Context, principalID string) (*models.CachedSecret, error)
	Count(ctx context.Context) (int64, error)
}
